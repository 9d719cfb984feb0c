package speech

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	speechmodel "github.com/zhouzirui/parley/backend/internal/model/speech"
)

type asrCapture struct {
	request *volcengineASRRequest
	audio   []byte
	chunks  int
}

// fakeVolcengineASR reads the full client request and every audio chunk, then
// answers with reply.
func fakeVolcengineASR(t *testing.T, reply func(conn *websocket.Conn)) (string, <-chan asrCapture) {
	t.Helper()
	captured := make(chan asrCapture, 1)
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var capture asrCapture
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := DecodeMessage(bytes.NewReader(data))
			if err != nil {
				return
			}
			body, err := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			if err != nil {
				return
			}

			if msg.Header.MessageType == FullClientRequest {
				var req volcengineASRRequest
				if err := sonic.Unmarshal(body, &req); err != nil {
					return
				}
				capture.request = &req
				continue
			}

			capture.audio = append(capture.audio, body...)
			capture.chunks++
			if msg.IsLastPacket() {
				break
			}
		}

		captured <- capture
		reply(conn)
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http"), captured
}

func writeASRResult(t *testing.T, conn *websocket.Conn, body string) {
	t.Helper()
	writeFrame(t, conn, &Message{
		Header:      NewHeader(FullServerResponse, NegativeSequenceNumber, JSONSerialization, NoCompression),
		Sequence:    -3,
		PayloadSize: uint32(len(body)),
		Payload:     []byte(body),
	})
}

func testASRClient(url string) *VolcengineASRClient {
	client := NewVolcengineASRClient(&speechmodel.SpeechConfig{AppID: "app", AccessToken: "token", ASRModel: "bigmodel"})
	client.url = url
	client.dialer = newWSDialer(DialOptions{HandshakeTimeout: time.Second, MaxRetries: 1})
	client.chunkInterval = time.Millisecond
	return client
}

func TestVolcengineTranscribeStreamsChunks(t *testing.T) {
	url, captured := fakeVolcengineASR(t, func(conn *websocket.Conn) {
		writeASRResult(t, conn, `{"code":0,"sequence":-3,"result":{"text":"hello world"},"audio_info":{"duration":640}}`)
	})

	audio := bytes.Repeat([]byte{1, 2}, asrChunkSize)
	resp, err := testASRClient(url).Transcribe(context.Background(), &speechmodel.ASRRequest{
		SessionID: "s-1",
		AudioData: bytes.NewReader(audio),
		Format:    "wav",
		Language:  "de-DE",
	})
	require.NoError(t, err)

	assert.Equal(t, "hello world", resp.Text)
	assert.Equal(t, int64(640), resp.Duration)
	assert.InDelta(t, 0.95, resp.Confidence, 1e-9)

	capture := <-captured
	require.NotNil(t, capture.request)
	assert.Equal(t, "de-DE", capture.request.Audio.Language)
	assert.Equal(t, "wav", capture.request.Audio.Format)
	assert.Equal(t, "bigmodel", capture.request.Request.ModelName)
	assert.Equal(t, 2, capture.chunks)
	assert.Equal(t, audio, capture.audio)
}

func TestVolcengineTranscribeJoinsUtterances(t *testing.T) {
	url, _ := fakeVolcengineASR(t, func(conn *websocket.Conn) {
		writeASRResult(t, conn, `{"code":0,"result":{"utterances":[{"text":"good"},{"text":""},{"text":"morning"}]}}`)
	})

	resp, err := testASRClient(url).Transcribe(context.Background(), &speechmodel.ASRRequest{
		AudioData: bytes.NewReader([]byte("pcm")),
	})
	require.NoError(t, err)
	assert.Equal(t, "good morning", resp.Text)
}

func TestVolcengineTranscribeEmptyResultIsUnrecognized(t *testing.T) {
	url, _ := fakeVolcengineASR(t, func(conn *websocket.Conn) {
		writeASRResult(t, conn, `{"code":0,"result":{"text":""}}`)
	})

	_, err := testASRClient(url).Transcribe(context.Background(), &speechmodel.ASRRequest{
		AudioData: bytes.NewReader([]byte("silence")),
	})
	assert.True(t, IsUnrecognized(err))
}

func TestVolcengineTranscribeServerError(t *testing.T) {
	url, _ := fakeVolcengineASR(t, func(conn *websocket.Conn) {
		body := []byte(`{"error":"bad audio"}`)
		writeFrame(t, conn, &Message{
			Header:      NewHeader(ErrorMessage, NoSequenceNumber, JSONSerialization, NoCompression),
			ErrorCode:   45000001,
			PayloadSize: uint32(len(body)),
			Payload:     body,
		})
	})

	_, err := testASRClient(url).Transcribe(context.Background(), &speechmodel.ASRRequest{
		AudioData: bytes.NewReader([]byte("pcm")),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "45000001")
	assert.False(t, IsUnrecognized(err))
}

func TestVolcengineTranscribeEmptyAudio(t *testing.T) {
	_, err := testASRClient("ws://unused").Transcribe(context.Background(), &speechmodel.ASRRequest{
		AudioData: bytes.NewReader(nil),
	})
	assert.ErrorIs(t, err, ErrUnrecognized)
}

func TestVolcengineTranscribeDialFailureIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := testASRClient("ws"+strings.TrimPrefix(server.URL, "http")).Transcribe(context.Background(), &speechmodel.ASRRequest{
		AudioData: bytes.NewReader([]byte("pcm")),
	})
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}
