package command

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/parley/backend/internal/session"
)

const (
	ClearedFeedback     = "🗑️ Chat history cleared. Let's start fresh!"
	PersonalityFeedback = "🎭 To change personality, pick one from the personality selector. Switching starts a new conversation."
	FasterFeedback      = "⏩ Got it, I'll speak at normal speed."
	SlowerFeedback      = "🐢 Got it, I'll speak more slowly."
)

var helpLines = []struct {
	kind    Kind
	example string
	summary string
}{
	{ClearChat, "clear chat", "erase the conversation and cached audio"},
	{ChangePersonality, "change personality", "how to switch the assistant's personality"},
	{SpeakFaster, "speak faster", "play replies at normal speed"},
	{SpeakSlower, "speak slower", "play replies slowly"},
	{Help, "help", "show this list"},
}

// HelpText renders the static command list.
func HelpText() string {
	var b strings.Builder
	b.WriteString("🎤 Available commands:")
	for _, line := range helpLines {
		fmt.Fprintf(&b, "\n- \"%s\": %s", line.example, line.summary)
	}
	return b.String()
}

// Execute applies kind to state and returns the feedback shown to the user.
// Running the same command twice leaves state in the same shape.
func Execute(kind Kind, state *session.State) string {
	switch kind {
	case ClearChat:
		state.Clear()
		return ClearedFeedback
	case ChangePersonality:
		return PersonalityFeedback
	case SpeakFaster:
		state.SetSlow(false)
		return FasterFeedback
	case SpeakSlower:
		state.SetSlow(true)
		return SlowerFeedback
	case Help:
		return HelpText()
	default:
		return fmt.Sprintf("Unknown command %q.", kind)
	}
}
