package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	speechmodel "github.com/zhouzirui/parley/backend/internal/model/speech"
)

const (
	volcengineASRURL = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"

	// 16kHz, 16bit, mono: 200ms per chunk
	asrChunkSize     = 6400
	asrChunkInterval = 200 * time.Millisecond
)

// VolcengineASRClient 火山引擎 ASR websocket 客户端
type VolcengineASRClient struct {
	config        *speechmodel.SpeechConfig
	dialer        *wsDialer
	url           string
	chunkInterval time.Duration
}

type asrUtterance struct {
	Text      string `json:"text"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	Definite  bool   `json:"definite"`
}

type asrServerMessage struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string         `json:"text"`
		Utterances []asrUtterance `json:"utterances,omitempty"`
	} `json:"result,omitempty"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info,omitempty"`
}

type volcengineASRRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user,omitempty"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

// NewVolcengineASRClient 创建火山引擎 ASR 客户端
func NewVolcengineASRClient(config *speechmodel.SpeechConfig) *VolcengineASRClient {
	return &VolcengineASRClient{
		config:        config,
		dialer:        newWSDialer(DefaultDialOptions()),
		url:           volcengineASRURL,
		chunkInterval: asrChunkInterval,
	}
}

// Transcribe streams the audio in real-time sized chunks while reading
// results concurrently, so an early server error stops the upload.
func (c *VolcengineASRClient) Transcribe(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	appID, token, err := resolveCredentials(c.config)
	if err != nil {
		return nil, err
	}

	audioData, err := io.ReadAll(req.AudioData)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("%w: no audio data", ErrUnrecognized)
	}

	connectID := req.SessionID
	if connectID == "" {
		connectID = uuid.NewString()
	}

	resourceID := "volc.bigasr.sauc.duration"
	if c.config.ConcurrentMode {
		resourceID = "volc.bigasr.sauc.concurrent"
	}

	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := c.dialer.dial(ctx, c.url, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer conn.Close()

	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			log.Debug().Str("component", "asr").Str("logid", logid).Msg("connected")
		}
	}

	payload, err := sonic.Marshal(c.buildASRRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ASR request: %w", err)
	}
	compressed, err := CompressPayload(payload, GzipCompression)
	if err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	frame, err := EncodeMessage(CreateFullClientRequest(compressed, GzipCompression))
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, fmt.Errorf("%w: failed to send ASR request: %v", ErrServiceUnavailable, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	respCh := make(chan *speechmodel.ASRResponse, 1)
	recvErrCh := make(chan error, 1)
	go func() {
		result, err := c.receiveResults(ctx, conn, req.SessionID)
		if err != nil {
			recvErrCh <- err
			return
		}
		respCh <- result
	}()

	sendErrCh := make(chan error, 1)
	go func() {
		sendErrCh <- c.sendAudio(ctx, conn, audioData)
	}()

	for {
		select {
		case err := <-sendErrCh:
			if err != nil {
				return nil, fmt.Errorf("failed to send audio data: %w", err)
			}
			sendErrCh = nil
		case result := <-respCh:
			if strings.TrimSpace(result.Text) == "" {
				return nil, ErrUnrecognized
			}
			return result, nil
		case err := <-recvErrCh:
			return nil, err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *VolcengineASRClient) buildASRRequest(req *speechmodel.ASRRequest) *volcengineASRRequest {
	asrReq := &volcengineASRRequest{}
	asrReq.User.UID = req.SessionID

	asrReq.Audio.Format = req.Format
	if asrReq.Audio.Format == "" {
		asrReq.Audio.Format = "wav"
	}
	asrReq.Audio.Language = req.Language
	asrReq.Audio.Codec = "raw"
	asrReq.Audio.Rate = 16000
	asrReq.Audio.Bits = 16
	asrReq.Audio.Channel = 1

	asrReq.Request.ModelName = "bigmodel"
	if c.config.ASRModel != "" {
		asrReq.Request.ModelName = c.config.ASRModel
	}
	asrReq.Request.EnableITN = true
	asrReq.Request.EnablePunc = true
	asrReq.Request.ShowUtterances = true
	asrReq.Request.ResultType = "full"
	asrReq.Request.EndWindowSize = 800

	return asrReq
}

// sendAudio uploads gzip-compressed chunks. Sequence 1 belongs to the full
// client request, so audio starts at 2.
func (c *VolcengineASRClient) sendAudio(ctx context.Context, conn *websocket.Conn, audioData []byte) error {
	sequence := int32(2)

	for start := 0; start < len(audioData); start += asrChunkSize {
		end := min(start+asrChunkSize, len(audioData))
		isLast := end == len(audioData)

		compressed, err := CompressPayload(audioData[start:end], GzipCompression)
		if err != nil {
			return fmt.Errorf("failed to compress audio chunk: %w", err)
		}
		frame, err := EncodeMessage(CreateAudioOnlyRequest(compressed, sequence, isLast, GzipCompression))
		if err != nil {
			return fmt.Errorf("failed to encode audio message: %w", err)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return fmt.Errorf("failed to send audio chunk: %w", err)
		}
		sequence++

		if isLast {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.chunkInterval):
		}
	}

	return nil
}

func (c *VolcengineASRClient) receiveResults(ctx context.Context, conn *websocket.Conn, sessionID string) (*speechmodel.ASRResponse, error) {
	var (
		finalText string
		duration  int64
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read ASR response: %v", ErrServiceUnavailable, err)
		}

		msg, err := DecodeMessage(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode ASR message: %w", err)
		}

		switch msg.Header.MessageType {
		case ErrorMessage:
			body, err := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			if err != nil {
				return nil, fmt.Errorf("ASR error message decode failed: %w", err)
			}
			return nil, fmt.Errorf("ASR error %d: %s", msg.ErrorCode, string(body))

		case FullServerResponse:
			body, err := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			if err != nil {
				return nil, fmt.Errorf("failed to decompress ASR payload: %w", err)
			}

			var serverResp asrServerMessage
			if err := sonic.Unmarshal(body, &serverResp); err != nil {
				log.Warn().Str("component", "asr").Err(err).Msg("failed to unmarshal response")
				continue
			}
			if serverResp.Code != 0 && serverResp.Code != 20000000 {
				return nil, fmt.Errorf("ASR API error %d: %s", serverResp.Code, serverResp.Message)
			}

			text := serverResp.Result.Text
			if text == "" {
				text = joinUtterances(serverResp.Result.Utterances)
			}
			if text != "" {
				finalText = text
			}
			if serverResp.AudioInfo.Duration > 0 {
				duration = serverResp.AudioInfo.Duration
			}

			if msg.IsLastPacket() || serverResp.Sequence < 0 {
				return &speechmodel.ASRResponse{
					SessionID:  sessionID,
					Text:       finalText,
					Confidence: estimateASRConfidence(finalText),
					Duration:   duration,
					RequestID:  sessionID,
					CreatedAt:  time.Now(),
				}, nil
			}

		default:
			// audio acks carry nothing useful
		}
	}
}

func joinUtterances(utterances []asrUtterance) string {
	parts := make([]string, 0, len(utterances))
	for _, u := range utterances {
		if u.Text != "" {
			parts = append(parts, u.Text)
		}
	}
	return strings.Join(parts, " ")
}

func estimateASRConfidence(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return 0.95
}

// IsUnrecognized reports whether err means the audio held no usable speech.
func IsUnrecognized(err error) bool {
	return errors.Is(err, ErrUnrecognized)
}
