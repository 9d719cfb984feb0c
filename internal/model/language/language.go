package language

// Language pairs the model's response-language directive with the locale
// codes the speech providers expect.
type Language struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Directive         string `json:"-"`
	RecognitionLocale string `json:"recognitionLocale"`
	SynthesisLocale   string `json:"synthesisLocale"`
}

// DefaultID is used when a session is created without an explicit language.
const DefaultID = "english"

// Seed lists the supported conversation languages.
func Seed() []Language {
	return []Language{
		{ID: "english", Name: "English", Directive: "Always respond in English.", RecognitionLocale: "en-US", SynthesisLocale: "en"},
		{ID: "chinese", Name: "中文", Directive: "Always respond in Simplified Chinese.", RecognitionLocale: "zh-CN", SynthesisLocale: "zh"},
		{ID: "spanish", Name: "Español", Directive: "Always respond in Spanish.", RecognitionLocale: "es-ES", SynthesisLocale: "es"},
		{ID: "french", Name: "Français", Directive: "Always respond in French.", RecognitionLocale: "fr-FR", SynthesisLocale: "fr"},
		{ID: "german", Name: "Deutsch", Directive: "Always respond in German.", RecognitionLocale: "de-DE", SynthesisLocale: "de"},
		{ID: "japanese", Name: "日本語", Directive: "Always respond in Japanese.", RecognitionLocale: "ja-JP", SynthesisLocale: "ja"},
	}
}

// Find looks up a language by identifier.
func Find(id string) (Language, bool) {
	for _, item := range Seed() {
		if item.ID == id {
			return item, true
		}
	}
	return Language{}, false
}
