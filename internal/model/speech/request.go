package speech

import "io"

// ASRRequest 语音识别请求
type ASRRequest struct {
	SessionID string    `json:"sessionId"`
	AudioData io.Reader `json:"-"`
	Format    string    `json:"format"`   // mp3, wav, webm, etc.
	Language  string    `json:"language"` // recognition locale, e.g. en-US
}

// TTSRequest 语音合成请求
type TTSRequest struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	Voice     string `json:"voice"`    // provider voice parameter
	Language  string `json:"language"` // synthesis locale, e.g. en
	Slow      bool   `json:"slow"`
	Format    string `json:"format"`
}
