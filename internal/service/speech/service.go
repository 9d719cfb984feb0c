package speech

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	speechmodel "github.com/zhouzirui/parley/backend/internal/model/speech"
)

type synthesizer interface {
	Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error)
}

type recognizer interface {
	Transcribe(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error)
}

// Service 语音服务，按配置选择火山引擎或 OpenAI 作为后端
type Service struct {
	config      *speechmodel.SpeechConfig
	synthesizer synthesizer
	recognizer  recognizer
}

// NewService 创建语音服务实例
func NewService(config *speechmodel.SpeechConfig) (*Service, error) {
	if config == nil {
		return nil, fmt.Errorf("speech config is nil")
	}

	switch config.Provider {
	case speechmodel.ProviderOpenAI:
		client, err := NewOpenAIClient(config)
		if err != nil {
			return nil, err
		}
		return &Service{config: config, synthesizer: client, recognizer: client}, nil
	case speechmodel.ProviderVolcengine, "":
		if _, _, err := resolveCredentials(config); err != nil {
			return nil, err
		}
		return &Service{
			config:      config,
			synthesizer: NewVolcengineTTSClient(config),
			recognizer:  NewVolcengineASRClient(config),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported speech provider %q", config.Provider)
	}
}

// Synthesize returns encoded audio for text spoken in the synthesis locale
// with the given provider voice parameter.
func (s *Service) Synthesize(ctx context.Context, text, locale, voice string, slow bool) ([]byte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := s.synthesizer.Synthesize(ctx, &speechmodel.TTSRequest{
		Text:     text,
		Voice:    voice,
		Language: locale,
		Slow:     slow,
		Format:   s.config.TTSFormat,
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("component", "speech").
		Int("bytes", len(resp.AudioData)).
		Dur("elapsed", time.Since(start)).
		Msg("synthesized")
	return resp.AudioData, nil
}

// Transcribe returns the recognized text of a recording.
func (s *Service) Transcribe(ctx context.Context, audio []byte, format, locale string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.recognizer.Transcribe(ctx, &speechmodel.ASRRequest{
		AudioData: bytes.NewReader(audio),
		Format:    strings.ToLower(strings.TrimSpace(format)),
		Language:  locale,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(s.config.Timeout)*time.Second)
}
