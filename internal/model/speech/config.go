package speech

// Provider selects the speech backend.
type Provider string

const (
	ProviderVolcengine Provider = "volcengine"
	ProviderOpenAI     Provider = "openai"
)

// SpeechConfig 语音服务配置
type SpeechConfig struct {
	Provider Provider `json:"provider"`

	// Volcengine
	AppID          string `json:"appId"`
	AccessToken    string `json:"accessToken"`
	APIKey         string `json:"apiKey,omitempty"`
	Region         string `json:"region"`
	BaseURL        string `json:"baseUrl"`
	ConcurrentMode bool   `json:"concurrentMode"` // ASR 并发版资源，默认小时版

	// OpenAI
	OpenAIAPIKey   string `json:"-"`
	OpenAIBaseURL  string `json:"openaiBaseUrl,omitempty"`
	OpenAITTSModel string `json:"openaiTtsModel,omitempty"`
	OpenAIASRModel string `json:"openaiAsrModel,omitempty"`

	// ASR
	ASRModel string `json:"asrModel"`

	// TTS
	TTSVoice     string  `json:"ttsVoice"` // 未指定 voice 时的兜底音色
	TTSFormat    string  `json:"ttsFormat"`
	TTSSlowSpeed float32 `json:"ttsSlowSpeed"` // 慢速播放的语速倍率
	TTSVolume    float32 `json:"ttsVolume"`

	Timeout int `json:"timeout"` // seconds
}

// SlowSpeedRatio returns the configured slow speed ratio, defaulting to 0.75.
func (c *SpeechConfig) SlowSpeedRatio() float32 {
	if c == nil || c.TTSSlowSpeed <= 0 || c.TTSSlowSpeed >= 1 {
		return 0.75
	}
	return c.TTSSlowSpeed
}
