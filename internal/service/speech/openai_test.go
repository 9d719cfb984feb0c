package speech

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	speechmodel "github.com/zhouzirui/parley/backend/internal/model/speech"
)

func newOpenAITestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc, err := NewService(&speechmodel.SpeechConfig{
		Provider:      speechmodel.ProviderOpenAI,
		OpenAIAPIKey:  "sk-test",
		OpenAIBaseURL: server.URL + "/v1",
	})
	require.NoError(t, err)
	return svc
}

func TestOpenAISynthesize(t *testing.T) {
	svc := newOpenAITestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	})

	audio, err := svc.Synthesize(context.Background(), "hello", "en", "en_female_amy_jupiter_bigtts", true)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), audio)
}

func TestOpenAISynthesize429IsRateLimited(t *testing.T) {
	svc := newOpenAITestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests"}}`))
	})

	_, err := svc.Synthesize(context.Background(), "hello", "en", "nova", false)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestOpenAITranscribe(t *testing.T) {
	svc := newOpenAITestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "es", r.FormValue("language"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" hola mundo "}`))
	})

	text, err := svc.Transcribe(context.Background(), []byte("RIFF...."), "wav", "es-ES")
	require.NoError(t, err)
	assert.Equal(t, "hola mundo", text)
}

func TestOpenAITranscribeEmptyIsUnrecognized(t *testing.T) {
	svc := newOpenAITestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":""}`))
	})

	_, err := svc.Transcribe(context.Background(), []byte("RIFF...."), "wav", "en-US")
	assert.True(t, IsUnrecognized(err))
}

func TestOpenAITranscribeServerErrorIsUnavailable(t *testing.T) {
	svc := newOpenAITestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := svc.Transcribe(context.Background(), []byte("RIFF...."), "wav", "en-US")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestResolveOpenAIVoice(t *testing.T) {
	assert.Equal(t, openai.VoiceNova, resolveOpenAIVoice("zh_female_vv_uranus_bigtts"))
	assert.Equal(t, openai.VoiceEcho, resolveOpenAIVoice("zh_male_M392_conversation_wvae_bigtts"))
	assert.Equal(t, openai.VoiceFable, resolveOpenAIVoice("Fable"))
	assert.Equal(t, openai.VoiceAlloy, resolveOpenAIVoice("unknown"))
}

func TestBaseLanguage(t *testing.T) {
	assert.Equal(t, "en", baseLanguage("en-US"))
	assert.Equal(t, "zh", baseLanguage("zh_CN"))
	assert.Equal(t, "ja", baseLanguage("ja"))
	assert.Empty(t, baseLanguage(""))
}

func TestNewServiceValidatesProvider(t *testing.T) {
	_, err := NewService(nil)
	assert.Error(t, err)

	_, err = NewService(&speechmodel.SpeechConfig{Provider: "polly"})
	assert.Error(t, err)

	_, err = NewService(&speechmodel.SpeechConfig{Provider: speechmodel.ProviderOpenAI})
	assert.Error(t, err)

	_, err = NewService(&speechmodel.SpeechConfig{Provider: speechmodel.ProviderVolcengine})
	assert.Error(t, err)

	svc, err := NewService(&speechmodel.SpeechConfig{AppID: "app", AccessToken: "token"})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestLooksRateLimited(t *testing.T) {
	for _, msg := range []string{"Too Many Requests", "QPS exceeded", "concurrency limit reached", "rate limit"} {
		assert.True(t, looksRateLimited(msg), msg)
	}
	assert.False(t, looksRateLimited("invalid speaker"))
}
