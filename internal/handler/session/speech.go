package session

import (
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/parley/backend/internal/middleware"
	"github.com/zhouzirui/parley/backend/internal/service/ttscache"
	"github.com/zhouzirui/parley/backend/pkg/utils"
)

const maxAudioUpload = 32 << 20

// Audio response headers. Advisory values are URL-encoded.
const (
	headerSpeechCached   = "X-Speech-Cached"
	headerSpeechAdvisory = "X-Speech-Advisory"
)

func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	audio, format, ok := readAudioUpload(w, r)
	if !ok {
		return
	}

	transcription, err := h.chatSvc.Transcribe(r.Context(), chi.URLParam(r, "sessionID"), audio, format)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, transcription)
}

func (h *Handler) handleVoice(w http.ResponseWriter, r *http.Request) {
	audio, format, ok := readAudioUpload(w, r)
	if !ok {
		return
	}

	out, err := h.chatSvc.HandleVoice(r.Context(), chi.URLParam(r, "sessionID"), audio, format)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) handleTurnAudio(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		utils.RespondError(w, http.StatusBadRequest, "turn index must be a non-negative integer")
		return
	}

	rendition, err := h.chatSvc.Speak(r.Context(), chi.URLParam(r, "sessionID"), index)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	switch {
	case rendition.Audio == nil && rendition.RateLimited:
		utils.RespondJSON(w, http.StatusTooManyRequests, rendition)
	case rendition.Audio == nil:
		utils.RespondJSON(w, http.StatusBadGateway, rendition)
	case strings.Contains(r.Header.Get("Accept"), "application/json"):
		utils.RespondJSON(w, http.StatusOK, rendition)
	default:
		h.writeAudio(w, r, rendition)
	}
}

func (h *Handler) writeAudio(w http.ResponseWriter, r *http.Request, rendition *ttscache.Rendition) {
	header := w.Header()
	header.Set("Content-Type", audioContentType(h.audioFormat))
	header.Set("Content-Length", strconv.Itoa(len(rendition.Audio)))
	header.Set(headerSpeechCached, strconv.FormatBool(rendition.Cached))
	for _, advisory := range rendition.Advisories {
		header.Add(headerSpeechAdvisory, url.QueryEscape(advisory))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(rendition.Audio); err != nil {
		middleware.Logger(r).Debug().Err(err).Msg("failed to write audio response")
	}
}

// readAudioUpload pulls the "audio" part out of a multipart form. It writes
// the error response itself and reports false when the upload is unusable.
func readAudioUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioUpload)
	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return nil, "", false
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return nil, "", false
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio file")
		return nil, "", false
	}

	format := strings.ToLower(strings.TrimSpace(r.FormValue("format")))
	if format == "" {
		format = inferAudioFormat(header.Filename)
	}
	return audio, format, true
}

func inferAudioFormat(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		return "mp3"
	case ".ogg", ".opus":
		return "ogg"
	case ".webm":
		return "webm"
	case ".m4a":
		return "m4a"
	case ".pcm", ".raw":
		return "pcm"
	default:
		return "wav"
	}
}

func audioContentType(format string) string {
	switch format {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "ogg_opus", "ogg", "opus":
		return "audio/ogg"
	case "pcm":
		return "audio/L16"
	default:
		return "application/octet-stream"
	}
}
