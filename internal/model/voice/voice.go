package voice

// Voice selects the timbre used for synthesis. Param is handed to the
// synthesis provider verbatim and is part of the audio cache key.
type Voice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Param       string `json:"param"`
}

// DefaultID is used when a session is created without an explicit voice.
const DefaultID = "warm-female"

// Seed lists the selectable voices.
func Seed() []Voice {
	return []Voice{
		{ID: "warm-female", Name: "Vivi", Description: "Warm, friendly female voice", Param: "zh_female_vv_uranus_bigtts"},
		{ID: "conversational-male", Name: "Marcus", Description: "Relaxed conversational male voice", Param: "zh_male_M392_conversation_wvae_bigtts"},
		{ID: "bright-female", Name: "Amy", Description: "Bright, clear female voice", Param: "en_female_amy_jupiter_bigtts"},
		{ID: "deep-male", Name: "Glen", Description: "Deep, expressive male voice", Param: "en_male_glen_emo_v2_mars_bigtts"},
	}
}

// Find looks up a voice by identifier.
func Find(id string) (Voice, bool) {
	for _, item := range Seed() {
		if item.ID == id {
			return item, true
		}
	}
	return Voice{}, false
}
