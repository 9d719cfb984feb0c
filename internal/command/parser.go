package command

import "strings"

// Kind names a control command recognized in user input.
type Kind string

const (
	ClearChat         Kind = "clear_chat"
	ChangePersonality Kind = "change_personality"
	SpeakFaster       Kind = "speak_faster"
	SpeakSlower       Kind = "speak_slower"
	Help              Kind = "help"
)

type bucket struct {
	kind     Kind
	keywords []string
}

// Buckets are checked in order and the first hit wins. Matching is plain
// substring containment, so "help me with my homework" is a Help command.
var buckets = []bucket{
	{kind: ClearChat, keywords: []string{
		"clear chat", "clear the chat", "clear history", "clear the history",
		"clear conversation", "reset chat", "reset conversation", "start over",
	}},
	{kind: ChangePersonality, keywords: []string{
		"change personality", "switch personality", "change persona",
		"switch persona", "change character", "different personality",
	}},
	{kind: SpeakFaster, keywords: []string{
		"speak faster", "talk faster", "speed up", "normal speed", "faster please",
	}},
	{kind: SpeakSlower, keywords: []string{
		"speak slower", "talk slower", "slow down", "slower please", "speak slowly",
	}},
	{kind: Help, keywords: []string{
		"help", "what can you do", "show commands", "list commands", "voice commands",
	}},
}

// Normalize trims and lower-cases raw input the way Parse expects it.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Parse classifies normalized text. ok is false when the text is an ordinary
// chat message.
func Parse(text string) (kind Kind, ok bool) {
	for _, b := range buckets {
		for _, word := range b.keywords {
			if strings.Contains(text, word) {
				return b.kind, true
			}
		}
	}
	return "", false
}

// Kinds returns every command kind in priority order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(buckets))
	for _, b := range buckets {
		kinds = append(kinds, b.kind)
	}
	return kinds
}

// Keywords returns the trigger phrases for kind.
func Keywords(kind Kind) []string {
	for _, b := range buckets {
		if b.kind == kind {
			return append([]string(nil), b.keywords...)
		}
	}
	return nil
}
