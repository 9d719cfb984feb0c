package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/parley/backend/internal/middleware"
	chatService "github.com/zhouzirui/parley/backend/internal/service/chat"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
)

// Frame types.
const (
	frameText    = "text"
	frameAudio   = "audio"
	frameConfig  = "config"
	frameSpeak   = "speak"
	frameOutcome = "outcome"
	frameVoice   = "voice"
	frameSpeech  = "speech"
	frameSession = "session"
	frameError   = "error"
)

type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TextFrame carries typed input.
type TextFrame struct {
	Text string `json:"text"`
}

// AudioFrame carries one chunk of a recording. Chunks are buffered until
// IsFinal and then handled as one voice input.
type AudioFrame struct {
	AudioData []byte `json:"audioData"`
	Format    string `json:"format"`
	IsFinal   bool   `json:"isFinal"`
}

// SpeakFrame asks for the audio of an assistant turn.
type SpeakFrame struct {
	TurnIndex int `json:"turnIndex"`
}

type outboundFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type errorData struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// wsConn serializes data writes; control frames go through WriteControl.
type wsConn struct {
	conn      *websocket.Conn
	sessionID string
	logger    *zerolog.Logger
	mu        sync.Mutex

	// touched only by the read loop
	audio       bytes.Buffer
	audioFormat string
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	snap, err := h.chatSvc.GetSession(sessionID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		middleware.Logger(r).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	logger := middleware.Logger(r).With().Str("component", "ws").Str("session", sessionID).Logger()
	c := &wsConn{conn: conn, sessionID: sessionID, logger: &logger}
	logger.Info().Msg("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	go c.pingLoop(ctx)

	c.send(frameSession, snap)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		var frame inboundFrame
		if err := sonic.Unmarshal(raw, &frame); err != nil {
			c.sendError(http.StatusBadRequest, "invalid frame")
			continue
		}
		h.handleFrame(ctx, c, &frame)
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
}

func (h *Handler) handleFrame(ctx context.Context, c *wsConn, frame *inboundFrame) {
	switch frame.Type {
	case frameText:
		var data TextFrame
		if !c.decode(frame.Data, &data) {
			return
		}
		outcome, err := h.chatSvc.HandleInput(ctx, c.sessionID, data.Text)
		if err != nil {
			c.sendServiceError(err)
			return
		}
		c.send(frameOutcome, outcome)

	case frameAudio:
		var data AudioFrame
		if !c.decode(frame.Data, &data) {
			return
		}
		audio, format, ready := c.bufferAudio(data)
		if !ready {
			return
		}
		out, err := h.chatSvc.HandleVoice(ctx, c.sessionID, audio, format)
		if err != nil {
			c.sendServiceError(err)
			return
		}
		c.send(frameVoice, out)

	case frameConfig:
		var data chatService.ConfigUpdate
		if !c.decode(frame.Data, &data) {
			return
		}
		snap, err := h.chatSvc.Configure(ctx, c.sessionID, data)
		if err != nil {
			c.sendServiceError(err)
			return
		}
		c.send(frameSession, snap)

	case frameSpeak:
		var data SpeakFrame
		if !c.decode(frame.Data, &data) {
			return
		}
		rendition, err := h.chatSvc.Speak(ctx, c.sessionID, data.TurnIndex)
		if err != nil {
			c.sendServiceError(err)
			return
		}
		c.send(frameSpeech, rendition)

	default:
		c.sendError(http.StatusBadRequest, "unknown frame type: "+frame.Type)
	}
}

// bufferAudio appends a chunk and, on the final chunk, hands back the whole
// recording and resets the buffer.
func (c *wsConn) bufferAudio(frame AudioFrame) ([]byte, string, bool) {
	c.audio.Write(frame.AudioData)
	if frame.Format != "" {
		c.audioFormat = frame.Format
	}
	if !frame.IsFinal {
		return nil, "", false
	}

	audio := bytes.Clone(c.audio.Bytes())
	format := c.audioFormat
	if format == "" {
		format = "wav"
	}
	c.audio.Reset()
	c.audioFormat = ""
	return audio, format, true
}

func (c *wsConn) decode(raw json.RawMessage, dst any) bool {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := sonic.Unmarshal(raw, dst); err != nil {
		c.sendError(http.StatusBadRequest, "invalid frame data")
		return false
	}
	return true
}

func (c *wsConn) send(frameType string, data any) {
	payload, err := sonic.Marshal(outboundFrame{
		Type:      frameType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		c.logger.Error().Err(err).Str("frame", frameType).Msg("failed to encode frame")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.logger.Debug().Err(err).Str("frame", frameType).Msg("websocket write failed")
	}
}

func (c *wsConn) sendError(status int, message string) {
	c.send(frameError, errorData{Message: message, Status: status})
}

func (c *wsConn) sendServiceError(err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		c.logger.Error().Err(err).Msg("frame failed")
	}
	c.sendError(status, err.Error())
}

func (c *wsConn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
