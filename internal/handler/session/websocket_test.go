package session

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type receivedFrame struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	Data      map[string]any `json:"data"`
}

func dialSession(t *testing.T, f fixture, sessionID string) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(f.router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/sessions/" + sessionID + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) receivedFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame receivedFrame
	require.NoError(t, sonic.Unmarshal(raw, &frame))
	return frame
}

func writeFrame(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

func TestWebSocketTextAndConfig(t *testing.T) {
	f := setupRouter(t)
	snap := f.createSession(t, "")
	conn := dialSession(t, f, snap.ID)

	hello := readFrame(t, conn)
	assert.Equal(t, frameSession, hello.Type)
	assert.Equal(t, snap.ID, hello.SessionID)

	writeFrame(t, conn, `{"type":"text","data":{"text":"hi"}}`)
	outcome := readFrame(t, conn)
	require.Equal(t, frameOutcome, outcome.Type)
	assert.Equal(t, "echo: hi", outcome.Data["reply"])

	writeFrame(t, conn, `{"type":"config","data":{"voice":"deep-male"}}`)
	updated := readFrame(t, conn)
	require.Equal(t, frameSession, updated.Type)
	voice, ok := updated.Data["voice"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "deep-male", voice["id"])

	writeFrame(t, conn, `{"type":"speak","data":{"turnIndex":1}}`)
	spoken := readFrame(t, conn)
	require.Equal(t, frameSpeech, spoken.Type)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("audio:echo: hi")), spoken.Data["audio"])
}

func TestWebSocketBuffersAudioUntilFinal(t *testing.T) {
	f := setupRouter(t)
	snap := f.createSession(t, "")
	f.transcriber.text = "help"
	conn := dialSession(t, f, snap.ID)
	readFrame(t, conn)

	chunk := base64.StdEncoding.EncodeToString([]byte("part"))
	writeFrame(t, conn, `{"type":"audio","data":{"audioData":"`+chunk+`","format":"webm"}}`)
	writeFrame(t, conn, `{"type":"audio","data":{"audioData":"`+chunk+`","isFinal":true}}`)

	voice := readFrame(t, conn)
	require.Equal(t, frameVoice, voice.Type)
	assert.Equal(t, "webm", f.transcriber.format)

	outcome, ok := voice.Data["outcome"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "command", outcome["kind"])
	assert.Equal(t, "help", outcome["command"])
}

func TestWebSocketErrors(t *testing.T) {
	f := setupRouter(t)
	snap := f.createSession(t, "")
	conn := dialSession(t, f, snap.ID)
	readFrame(t, conn)

	writeFrame(t, conn, `not json`)
	frame := readFrame(t, conn)
	assert.Equal(t, frameError, frame.Type)
	assert.EqualValues(t, http.StatusBadRequest, frame.Data["status"])

	writeFrame(t, conn, `{"type":"dance"}`)
	frame = readFrame(t, conn)
	assert.Equal(t, frameError, frame.Type)
	assert.Contains(t, frame.Data["message"], "dance")

	writeFrame(t, conn, `{"type":"speak","data":{"turnIndex":4}}`)
	frame = readFrame(t, conn)
	assert.Equal(t, frameError, frame.Type)
	assert.Contains(t, frame.Data["message"], "turn not found")
}

func TestWebSocketUnknownSession(t *testing.T) {
	f := setupRouter(t)
	server := httptest.NewServer(f.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/sessions/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
