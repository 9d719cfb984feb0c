package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	speechmodel "github.com/zhouzirui/parley/backend/internal/model/speech"
)

const volcengineTTSURL = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

// VolcengineTTSClient 火山引擎 TTS websocket 客户端
type VolcengineTTSClient struct {
	config *speechmodel.SpeechConfig
	dialer *wsDialer
	url    string
}

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition,omitempty"`
}

type volcengineTTSRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string                   `json:"speaker"`
		Text        string                   `json:"text"`
		AudioParams volcengineTTSAudioParams `json:"audio_params"`
		Additions   string                   `json:"additions,omitempty"`
		Language    string                   `json:"language,omitempty"`
	} `json:"req_params"`
}

type volcengineTTSAudioParams struct {
	Format      string  `json:"format"`
	SampleRate  int     `json:"sample_rate"`
	SpeedRatio  float32 `json:"speed_ratio,omitempty"`
	VolumeRatio float32 `json:"volume_ratio,omitempty"`
}

// NewVolcengineTTSClient 创建火山引擎 TTS 客户端
func NewVolcengineTTSClient(config *speechmodel.SpeechConfig) *VolcengineTTSClient {
	return &VolcengineTTSClient{
		config: config,
		dialer: newWSDialer(DefaultDialOptions()),
		url:    volcengineTTSURL,
	}
}

// Synthesize renders req.Text, trying each speaker candidate and, per speaker,
// each resource ID until one accepts the speaker.
func (c *VolcengineTTSClient) Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("TTS text is empty")
	}

	appKey, accessKey, err := resolveCredentials(c.config)
	if err != nil {
		return nil, err
	}

	encoding := strings.TrimSpace(req.Format)
	if encoding == "" || encoding == "wav" {
		encoding = "mp3"
	}

	speakers := resolveTTSSpeakerCandidates(req.Voice, c.config.TTSVoice)
	var lastMismatch error

	for _, speaker := range speakers {
		for _, resourceID := range resolveTTSResourceCandidates(speaker) {
			resp, attemptErr := c.synthesizeWithResource(ctx, req, appKey, accessKey, speaker, encoding, resourceID)
			if attemptErr == nil {
				return resp, nil
			}
			if !isResourceMismatchError(attemptErr) {
				return nil, attemptErr
			}
			log.Warn().Str("component", "tts").Str("speaker", speaker).Str("resource", resourceID).Err(attemptErr).Msg("resource mismatch")
			lastMismatch = attemptErr
		}
	}

	if lastMismatch != nil {
		return nil, lastMismatch
	}
	return nil, fmt.Errorf("TTS synthesis failed: no compatible resource for speakers %v", speakers)
}

func (c *VolcengineTTSClient) synthesizeWithResource(
	ctx context.Context,
	req *speechmodel.TTSRequest,
	appKey, accessKey, speaker, encoding, resourceID string,
) (*speechmodel.TTSResponse, error) {
	connectID := uuid.NewString()

	header := http.Header{}
	header.Set("X-Api-App-Key", appKey)
	header.Set("X-Api-Access-Key", accessKey)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := c.dialer.dial(ctx, c.url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS websocket: %w", err)
	}
	defer conn.Close()

	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			log.Debug().Str("component", "tts").Str("logid", logid).Msg("connected")
		}
	}

	payload, err := sonic.Marshal(c.buildTTSRequest(req, speaker, encoding))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}

	frame, err := EncodeMessage(CreateFullClientRequest(payload, NoCompression))
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, fmt.Errorf("failed to send TTS request: %w", err)
	}

	var (
		audio    bytes.Buffer
		reqID    string
		duration int64
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read TTS response: %w", err)
		}

		msg, err := DecodeMessage(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode TTS message: %w", err)
		}

		switch msg.Header.MessageType {
		case ErrorMessage:
			body, err := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			if err != nil {
				return nil, fmt.Errorf("TTS error message decode failed: %w", err)
			}
			return nil, classifyTTSError(fmt.Errorf("TTS error %d: %s", msg.ErrorCode, string(body)))

		case AudioOnlyServerResponse:
			chunk, err := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			if err != nil {
				return nil, fmt.Errorf("failed to decompress audio chunk: %w", err)
			}
			audio.Write(chunk)

		case FullServerResponse:
			body, err := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			if err != nil {
				return nil, fmt.Errorf("failed to decompress TTS response payload: %w", err)
			}

			var serverResp ttsServerMessage
			if len(body) > 0 {
				if err := sonic.Unmarshal(body, &serverResp); err != nil {
					log.Warn().Str("component", "tts").Err(err).Msg("failed to unmarshal response payload")
				} else {
					if serverResp.Code != 0 && serverResp.Code != 3000 {
						return nil, classifyTTSError(fmt.Errorf("TTS API error %d: %s", serverResp.Code, serverResp.Message))
					}
					if serverResp.ReqID != "" {
						reqID = serverResp.ReqID
					}
					if serverResp.Addition.Duration != "" {
						if parsed, err := strconv.ParseInt(serverResp.Addition.Duration, 10, 64); err == nil {
							duration = parsed
						}
					}
					if serverResp.Data != "" {
						chunk, err := base64.StdEncoding.DecodeString(serverResp.Data)
						if err != nil {
							return nil, fmt.Errorf("failed to decode base64 audio chunk: %w", err)
						}
						audio.Write(chunk)
					}
				}
			}

			finished := (msg.Header.MessageFlags.hasEvent() && msg.EventType == EventTypeSessionFinished) ||
				msg.IsLastPacket() || serverResp.Sequence < 0
			if !finished {
				continue
			}
			if audio.Len() == 0 {
				return nil, fmt.Errorf("TTS audio is empty")
			}
			if reqID == "" {
				reqID = connectID
			}
			return &speechmodel.TTSResponse{
				SessionID: req.SessionID,
				AudioData: audio.Bytes(),
				Duration:  duration,
				Format:    encoding,
				RequestID: reqID,
				CreatedAt: time.Now(),
			}, nil

		default:
			log.Debug().Str("component", "tts").Uint8("type", uint8(msg.Header.MessageType)).Msg("unexpected message type")
		}
	}
}

// buildTTSRequest 构建火山引擎 TTS 请求体
func (c *VolcengineTTSClient) buildTTSRequest(req *speechmodel.TTSRequest, speaker, encoding string) *volcengineTTSRequest {
	ttsReq := &volcengineTTSRequest{}

	ttsReq.User.UID = strings.TrimSpace(req.SessionID)
	if ttsReq.User.UID == "" {
		ttsReq.User.UID = uuid.NewString()
	}

	ttsReq.ReqParams.Speaker = speaker
	ttsReq.ReqParams.Text = req.Text
	ttsReq.ReqParams.Language = strings.TrimSpace(req.Language)
	ttsReq.ReqParams.AudioParams.Format = encoding
	ttsReq.ReqParams.AudioParams.SampleRate = 24000

	if req.Slow {
		ttsReq.ReqParams.AudioParams.SpeedRatio = c.config.SlowSpeedRatio()
	}
	if c.config.TTSVolume > 0 && c.config.TTSVolume != 1.0 {
		ttsReq.ReqParams.AudioParams.VolumeRatio = c.config.TTSVolume
	}

	ttsReq.ReqParams.Additions = `{"disable_markdown_filter":false}`
	return ttsReq
}

// classifyTTSError tags throttling answers with ErrRateLimited.
func classifyTTSError(err error) error {
	if err == nil || errors.Is(err, ErrRateLimited) {
		return err
	}
	if looksRateLimited(err.Error()) {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return err
}

func resolveTTSResourceCandidates(voice string) []string {
	const (
		defaultResource = "volc.service_type.10029"
		megaResource    = "volc.megatts.default"
		seedResource    = "seed-tts-2.0"
	)

	voice = strings.TrimSpace(voice)
	if voice == "" {
		return []string{defaultResource, seedResource}
	}
	if strings.HasPrefix(voice, "S_") {
		return []string{megaResource}
	}

	normalized := strings.ToLower(voice)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "saturn", "mars"} {
		if strings.Contains(normalized, hint) {
			return []string{seedResource, defaultResource}
		}
	}
	return []string{defaultResource, seedResource}
}

// resolveTTSSpeakerCandidates orders the requested speaker before the
// configured fallback, dropping blanks and case-insensitive duplicates.
func resolveTTSSpeakerCandidates(requested, fallback string) []string {
	var candidates []string
	for _, s := range []string{requested, fallback} {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		duplicate := false
		for _, existing := range candidates {
			if strings.EqualFold(existing, s) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return []string{""}
	}
	return candidates
}

func isResourceMismatchError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}
