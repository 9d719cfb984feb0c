package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	speechmodel "github.com/zhouzirui/parley/backend/internal/model/speech"
)

// AI providers.
const (
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Log     LogConfig     `toml:"log"`
	AI      AIConfig      `toml:"ai"`
	Speech  SpeechConfig  `toml:"speech"`
	Session SessionConfig `toml:"session"`
}

// Load 读取可选的 TOML 配置文件（CONFIG_FILE），再用环境变量覆盖。
func Load() (*Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	addr, err := normalizeAddr(cfg.Server.Addr)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info", Format: "console"},
		AI: AIConfig{
			Provider: ProviderArk,
			BaseURL:  "https://ark.cn-beijing.volces.com/api/v3",
			Region:   "cn-beijing",
		},
		Speech: SpeechConfig{
			Provider:     string(speechmodel.ProviderVolcengine),
			Region:       "cn-beijing",
			TTSFormat:    "mp3",
			TTSSlowSpeed: 0.75,
			TTSVolume:    1.0,
			Timeout:      30,
		},
	}
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// LogConfig 日志级别与输出格式（json 或 console）。
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// SessionConfig holds the defaults applied to new sessions.
type SessionConfig struct {
	DefaultPersonality string `toml:"default_personality"`
	DefaultLanguage    string `toml:"default_language"`
	DefaultVoice       string `toml:"default_voice"`
	AutoSpeak          bool   `toml:"auto_speak"`
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider string `toml:"provider"`

	APIKey      string   `toml:"api_key"`
	AccessKey   string   `toml:"access_key"`
	SecretKey   string   `toml:"secret_key"`
	Model       string   `toml:"model"`
	BaseURL     string   `toml:"base_url"`
	Region      string   `toml:"region"`
	Temperature *float64 `toml:"temperature"`
	TopP        *float64 `toml:"top_p"`
	MaxTokens   *int     `toml:"max_tokens"`

	OpenAIAPIKey  string `toml:"openai_api_key"`
	OpenAIModel   string `toml:"openai_model"`
	OpenAIBaseURL string `toml:"openai_base_url"`
}

// Enabled 表示所选 provider 是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	if c.Provider == ProviderOpenAI {
		return c.OpenAIAPIKey != ""
	}
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.Model == "" || (c.APIKey == "" && (c.AccessKey == "" || c.SecretKey == "")) {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	})
}

// SpeechConfig 描述语音服务相关配置
type SpeechConfig struct {
	Provider       string  `toml:"provider"`
	AppID          string  `toml:"app_id"`
	AccessToken    string  `toml:"access_token"`
	APIKey         string  `toml:"api_key"`
	Region         string  `toml:"region"`
	BaseURL        string  `toml:"base_url"`
	ConcurrentMode bool    `toml:"concurrent"`
	ASRModel       string  `toml:"asr_model"`
	TTSVoice       string  `toml:"tts_voice"`
	TTSFormat      string  `toml:"tts_format"`
	TTSSlowSpeed   float32 `toml:"tts_slow_speed"`
	TTSVolume      float32 `toml:"tts_volume"`
	Timeout        int     `toml:"timeout"`

	OpenAIAPIKey   string `toml:"openai_api_key"`
	OpenAIBaseURL  string `toml:"openai_base_url"`
	OpenAITTSModel string `toml:"openai_tts_model"`
	OpenAIASRModel string `toml:"openai_asr_model"`
}

// Enabled 表示所选 provider 是否提供了必需的密钥。
func (c SpeechConfig) Enabled() bool {
	if c.Provider == string(speechmodel.ProviderOpenAI) {
		return c.OpenAIAPIKey != ""
	}
	return c.AppID != "" && c.AccessToken != ""
}

// Model converts the settings into the speech client configuration.
func (c SpeechConfig) Model() *speechmodel.SpeechConfig {
	return &speechmodel.SpeechConfig{
		Provider:       speechmodel.Provider(c.Provider),
		AppID:          c.AppID,
		AccessToken:    c.AccessToken,
		APIKey:         c.APIKey,
		Region:         c.Region,
		BaseURL:        c.BaseURL,
		ConcurrentMode: c.ConcurrentMode,
		OpenAIAPIKey:   c.OpenAIAPIKey,
		OpenAIBaseURL:  c.OpenAIBaseURL,
		OpenAITTSModel: c.OpenAITTSModel,
		OpenAIASRModel: c.OpenAIASRModel,
		ASRModel:       c.ASRModel,
		TTSVoice:       c.TTSVoice,
		TTSFormat:      c.TTSFormat,
		TTSSlowSpeed:   c.TTSSlowSpeed,
		TTSVolume:      c.TTSVolume,
		Timeout:        c.Timeout,
	}
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Addr, "PORT")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")

	if err := c.applyAIEnv(); err != nil {
		return err
	}
	if err := c.applySpeechEnv(); err != nil {
		return err
	}

	setString(&c.Session.DefaultPersonality, "SESSION_DEFAULT_PERSONALITY")
	setString(&c.Session.DefaultLanguage, "SESSION_DEFAULT_LANGUAGE")
	setString(&c.Session.DefaultVoice, "SESSION_DEFAULT_VOICE")
	return setBool(&c.Session.AutoSpeak, "SESSION_AUTO_SPEAK")
}

func (c *Config) applyAIEnv() error {
	ai := &c.AI
	setString(&ai.Provider, "AI_PROVIDER")
	ai.Provider = strings.ToLower(ai.Provider)
	if ai.Provider != ProviderArk && ai.Provider != ProviderOpenAI {
		return fmt.Errorf("invalid AI_PROVIDER value %q", ai.Provider)
	}

	setString(&ai.APIKey, "ARK_API_KEY")
	setString(&ai.AccessKey, "ARK_ACCESS_KEY")
	setString(&ai.SecretKey, "ARK_SECRET_KEY")
	setString(&ai.Model, "Model")
	setString(&ai.BaseURL, "ARK_BASE_URL")
	setString(&ai.Region, "ARK_REGION")
	setString(&ai.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&ai.OpenAIModel, "OPENAI_MODEL")
	setString(&ai.OpenAIBaseURL, "OPENAI_BASE_URL")

	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return err
	}
	if temperature != nil {
		ai.Temperature = temperature
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return err
	}
	if topP != nil {
		ai.TopP = topP
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return err
	}
	if maxTokens != nil {
		ai.MaxTokens = maxTokens
	}
	return nil
}

func (c *Config) applySpeechEnv() error {
	sp := &c.Speech
	setString(&sp.Provider, "SPEECH_PROVIDER")
	sp.Provider = strings.ToLower(sp.Provider)
	switch speechmodel.Provider(sp.Provider) {
	case speechmodel.ProviderVolcengine, speechmodel.ProviderOpenAI:
	default:
		return fmt.Errorf("invalid SPEECH_PROVIDER value %q", sp.Provider)
	}

	setString(&sp.AppID, "SPEECH_APP_ID")
	setString(&sp.AccessToken, "SPEECH_ACCESS_TOKEN")
	setString(&sp.APIKey, "SPEECH_API_KEY")
	setString(&sp.Region, "SPEECH_REGION")
	setString(&sp.BaseURL, "SPEECH_BASE_URL")
	setString(&sp.ASRModel, "SPEECH_ASR_MODEL")
	setString(&sp.TTSVoice, "SPEECH_TTS_VOICE")
	setString(&sp.TTSFormat, "SPEECH_TTS_FORMAT")
	setString(&sp.OpenAIBaseURL, "SPEECH_OPENAI_BASE_URL")
	setString(&sp.OpenAITTSModel, "SPEECH_OPENAI_TTS_MODEL")
	setString(&sp.OpenAIASRModel, "SPEECH_OPENAI_ASR_MODEL")

	if sp.AccessToken == "" {
		sp.AccessToken = sp.APIKey
	}
	// 如果没有专门的语音配置，尝试使用AI配置
	if sp.AccessToken == "" {
		sp.AccessToken = c.AI.APIKey
	}
	if sp.OpenAIAPIKey == "" {
		sp.OpenAIAPIKey = c.AI.OpenAIAPIKey
	}
	if sp.OpenAIBaseURL == "" {
		sp.OpenAIBaseURL = c.AI.OpenAIBaseURL
	}

	if err := setBool(&sp.ConcurrentMode, "SPEECH_CONCURRENT"); err != nil {
		return err
	}

	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return err
	}
	if timeout != nil {
		sp.Timeout = *timeout
	}

	slow, err := parseOptionalFloat32Env("SPEECH_TTS_SLOW_SPEED")
	if err != nil {
		return err
	}
	if slow != nil {
		sp.TTSSlowSpeed = *slow
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return err
	}
	if volume != nil {
		sp.TTSVolume = *volume
	}
	return nil
}

// normalizeAddr 允许用户直接传入 "8080"、":8080" 或 "127.0.0.1:8080"。
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		return ":8080", nil
	}
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}
	if strings.Contains(port, ":") {
		return port, nil
	}
	return ":" + port, nil
}

func setString(dst *string, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*dst = value
	}
}

func setBool(dst *bool, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	*dst = val
	return nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
