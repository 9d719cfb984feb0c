package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	speechmodel "github.com/zhouzirui/parley/backend/internal/model/speech"
)

// OpenAI voice names keyed by the Volcengine speaker parameters of the voice
// catalog. Unmapped parameters that already name an OpenAI voice pass through.
var openAIVoiceAliases = map[string]openai.SpeechVoice{
	"zh_female_vv_uranus_bigtts":            openai.VoiceNova,
	"zh_male_m392_conversation_wvae_bigtts": openai.VoiceEcho,
	"en_female_amy_jupiter_bigtts":          openai.VoiceShimmer,
	"en_male_glen_emo_v2_mars_bigtts":       openai.VoiceOnyx,
}

var openAIVoices = map[string]openai.SpeechVoice{
	"alloy":   openai.VoiceAlloy,
	"echo":    openai.VoiceEcho,
	"fable":   openai.VoiceFable,
	"onyx":    openai.VoiceOnyx,
	"nova":    openai.VoiceNova,
	"shimmer": openai.VoiceShimmer,
}

// OpenAIClient implements synthesis with the speech endpoint and recognition
// with Whisper.
type OpenAIClient struct {
	config *speechmodel.SpeechConfig
	client *openai.Client
}

// NewOpenAIClient builds a client from the OpenAI fields of config.
func NewOpenAIClient(config *speechmodel.SpeechConfig) (*OpenAIClient, error) {
	if config == nil || strings.TrimSpace(config.OpenAIAPIKey) == "" {
		return nil, fmt.Errorf("OpenAI speech provider requires an API key")
	}

	clientConfig := openai.DefaultConfig(config.OpenAIAPIKey)
	if base := strings.TrimSpace(config.OpenAIBaseURL); base != "" {
		clientConfig.BaseURL = base
	}

	return &OpenAIClient{
		config: config,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

// Synthesize renders req.Text as mp3.
func (c *OpenAIClient) Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("TTS text is empty")
	}

	model := openai.TTSModel1
	if c.config.OpenAITTSModel != "" {
		model = openai.SpeechModel(c.config.OpenAITTSModel)
	}

	speed := 1.0
	if req.Slow {
		speed = float64(c.config.SlowSpeedRatio())
	}

	raw, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          model,
		Input:          req.Text,
		Voice:          resolveOpenAIVoice(req.Voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          speed,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	defer raw.Close()

	audio, err := io.ReadAll(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech response: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("TTS audio is empty")
	}

	return &speechmodel.TTSResponse{
		SessionID: req.SessionID,
		AudioData: audio,
		Format:    string(openai.SpeechResponseFormatMp3),
		CreatedAt: time.Now(),
	}, nil
}

// Transcribe sends the recording to Whisper. The recognition locale is
// reduced to its ISO-639-1 language part.
func (c *OpenAIClient) Transcribe(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	audio, err := io.ReadAll(req.AudioData)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: no audio data", ErrUnrecognized)
	}

	model := openai.Whisper1
	if c.config.OpenAIASRModel != "" {
		model = c.config.OpenAIASRModel
	}

	format := strings.TrimSpace(req.Format)
	if format == "" {
		format = "wav"
	}

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: "recording." + format,
		Reader:   bytes.NewReader(audio),
		Language: baseLanguage(req.Language),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		if errors.Is(classifyOpenAIError(err), ErrRateLimited) {
			return nil, classifyOpenAIError(err)
		}
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, ErrUnrecognized
	}

	return &speechmodel.ASRResponse{
		SessionID:  req.SessionID,
		Text:       text,
		Confidence: estimateASRConfidence(text),
		CreatedAt:  time.Now(),
	}, nil
}

func resolveOpenAIVoice(param string) openai.SpeechVoice {
	normalized := strings.ToLower(strings.TrimSpace(param))
	if v, ok := openAIVoiceAliases[normalized]; ok {
		return v
	}
	if v, ok := openAIVoices[normalized]; ok {
		return v
	}
	return openai.VoiceAlloy
}

func baseLanguage(locale string) string {
	locale = strings.TrimSpace(locale)
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		locale = locale[:i]
	}
	return strings.ToLower(locale)
}

// classifyOpenAIError maps HTTP 429 answers to ErrRateLimited.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && isRateLimitStatus(apiErr.HTTPStatusCode) {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && isRateLimitStatus(reqErr.HTTPStatusCode) {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return classifyTTSError(err)
}
