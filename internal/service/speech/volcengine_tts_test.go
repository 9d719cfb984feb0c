package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	speechmodel "github.com/zhouzirui/parley/backend/internal/model/speech"
)

func TestResolveTTSResourceCandidates(t *testing.T) {
	tests := []struct {
		name  string
		voice string
		want  []string
	}{
		{
			name:  "default voice",
			voice: "",
			want:  []string{"volc.service_type.10029", "seed-tts-2.0"},
		},
		{
			name:  "mega clone voice",
			voice: "S_clone_speaker",
			want:  []string{"volc.megatts.default"},
		},
		{
			name:  "bigtts voice",
			voice: "zh_female_vv_uranus_bigtts",
			want:  []string{"seed-tts-2.0", "volc.service_type.10029"},
		},
		{
			name:  "legacy 1.0 voice",
			voice: "zh_male_organizer",
			want:  []string{"volc.service_type.10029", "seed-tts-2.0"},
		},
	}

	for _, tt := range tests {
		got := resolveTTSResourceCandidates(tt.voice)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: resolveTTSResourceCandidates(%q) = %v, want %v", tt.name, tt.voice, got, tt.want)
		}
	}
}

func TestResolveTTSSpeakerCandidates(t *testing.T) {
	tests := []struct {
		name     string
		request  string
		fallback string
		want     []string
	}{
		{
			name:     "request and fallback",
			request:  "en_female_amy_jupiter_bigtts",
			fallback: "zh_female_vv_uranus_bigtts",
			want:     []string{"en_female_amy_jupiter_bigtts", "zh_female_vv_uranus_bigtts"},
		},
		{
			name:     "request empty",
			request:  "",
			fallback: "zh_male_M392_conversation_wvae_bigtts",
			want:     []string{"zh_male_M392_conversation_wvae_bigtts"},
		},
		{
			name:     "duplicates ignored",
			request:  "ZH_voice",
			fallback: "zh_voice",
			want:     []string{"ZH_voice"},
		},
		{
			name: "nothing configured",
			want: []string{""},
		},
	}

	for _, tt := range tests {
		got := resolveTTSSpeakerCandidates(tt.request, tt.fallback)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: resolveTTSSpeakerCandidates(%q, %q) = %v, want %v", tt.name, tt.request, tt.fallback, got, tt.want)
		}
	}
}

func TestIsResourceMismatchError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "unrelated error", err: fmt.Errorf("some other error"), want: false},
		{
			name: "mismatch substring",
			err:  fmt.Errorf("TTS error: {\"error\":\"resource ID is mismatched with speaker related resource\"}"),
			want: true,
		},
	}

	for _, tc := range cases {
		if got := isResourceMismatchError(tc.err); got != tc.want {
			t.Errorf("%s: isResourceMismatchError(%v) = %v, want %v", tc.name, tc.err, got, tc.want)
		}
	}
}

func TestClassifyTTSError(t *testing.T) {
	assert.NoError(t, classifyTTSError(nil))
	assert.ErrorIs(t, classifyTTSError(errors.New("TTS API error 45000292: quota exceeded for types")), ErrRateLimited)
	assert.ErrorIs(t, classifyTTSError(errors.New("Too Many Requests")), ErrRateLimited)

	plain := errors.New("TTS API error 40402003: speaker not found")
	assert.Equal(t, plain, classifyTTSError(plain))
}

func TestBuildTTSRequestAppliesSlowRatio(t *testing.T) {
	client := NewVolcengineTTSClient(&speechmodel.SpeechConfig{TTSSlowSpeed: 0.6})

	normal := client.buildTTSRequest(&speechmodel.TTSRequest{Text: "hi", Language: "en"}, "spk", "mp3")
	assert.Zero(t, normal.ReqParams.AudioParams.SpeedRatio)
	assert.Equal(t, "en", normal.ReqParams.Language)
	assert.NotEmpty(t, normal.User.UID)

	slow := client.buildTTSRequest(&speechmodel.TTSRequest{Text: "hi", Slow: true}, "spk", "mp3")
	assert.InDelta(t, 0.6, slow.ReqParams.AudioParams.SpeedRatio, 1e-6)
}

// fakeVolcengine upgrades every request and hands the connection to script.
func fakeVolcengine(t *testing.T, script func(conn *websocket.Conn, req *volcengineTTSRequest)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := DecodeMessage(bytes.NewReader(data))
		if err != nil {
			return
		}
		var req volcengineTTSRequest
		if err := sonic.Unmarshal(msg.Payload, &req); err != nil {
			return
		}
		script(conn, &req)
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func writeFrame(t *testing.T, conn *websocket.Conn, msg *Message) {
	t.Helper()
	frame, err := EncodeMessage(msg)
	if assert.NoError(t, err) {
		assert.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))
	}
}

func testTTSClient(url string) *VolcengineTTSClient {
	client := NewVolcengineTTSClient(&speechmodel.SpeechConfig{AppID: "app", AccessToken: "token"})
	client.url = url
	client.dialer = newWSDialer(DialOptions{HandshakeTimeout: time.Second, MaxRetries: 1})
	return client
}

func TestVolcengineSynthesizeCollectsAudio(t *testing.T) {
	received := make(chan *volcengineTTSRequest, 1)
	url := fakeVolcengine(t, func(conn *websocket.Conn, req *volcengineTTSRequest) {
		received <- req

		writeFrame(t, conn, &Message{
			Header:      NewHeader(AudioOnlyServerResponse, PositiveSequenceNumber, NoSerialization, NoCompression),
			Sequence:    1,
			PayloadSize: 3,
			Payload:     []byte("abc"),
		})
		done := []byte(`{"code":0,"reqid":"r-1","sequence":-2}`)
		writeFrame(t, conn, &Message{
			Header:      NewHeader(FullServerResponse, NegativeSequenceNumber, JSONSerialization, NoCompression),
			Sequence:    -2,
			PayloadSize: uint32(len(done)),
			Payload:     done,
		})
	})

	resp, err := testTTSClient(url).Synthesize(context.Background(), &speechmodel.TTSRequest{
		Text:  "hello",
		Voice: "en_female_amy_jupiter_bigtts",
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("abc"), resp.AudioData)
	assert.Equal(t, "r-1", resp.RequestID)
	assert.Equal(t, "mp3", resp.Format)
	req := <-received
	assert.Equal(t, "en_female_amy_jupiter_bigtts", req.ReqParams.Speaker)
	assert.Equal(t, "hello", req.ReqParams.Text)
}

func TestVolcengineSynthesizeMapsQuotaErrorToRateLimited(t *testing.T) {
	url := fakeVolcengine(t, func(conn *websocket.Conn, _ *volcengineTTSRequest) {
		body := []byte(`{"error":"quota exceeded"}`)
		writeFrame(t, conn, &Message{
			Header:      NewHeader(ErrorMessage, NoSequenceNumber, JSONSerialization, NoCompression),
			ErrorCode:   45000292,
			PayloadSize: uint32(len(body)),
			Payload:     body,
		})
	})

	_, err := testTTSClient(url).Synthesize(context.Background(), &speechmodel.TTSRequest{Text: "hello", Voice: "S_x"})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestVolcengineHandshake429IsRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := testTTSClient("ws" + strings.TrimPrefix(server.URL, "http"))
	_, err := client.Synthesize(context.Background(), &speechmodel.TTSRequest{Text: "hello", Voice: "S_x"})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestVolcengineSynthesizeRejectsBlankText(t *testing.T) {
	_, err := testTTSClient("ws://unused").Synthesize(context.Background(), &speechmodel.TTSRequest{Text: "  "})
	assert.Error(t, err)
}
