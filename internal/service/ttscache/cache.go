// Package ttscache renders assistant turns to audio at most once per turn,
// language and voice.
package ttscache

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/parley/backend/internal/model/chat"
	"github.com/zhouzirui/parley/backend/internal/service/speech"
	"github.com/zhouzirui/parley/backend/internal/session"
)

const (
	// MaxChars is the longest text handed to the synthesizer, in runes.
	MaxChars = 1000
	// SlowChars is the length above which synthesis is flagged as slow.
	SlowChars = 500

	ellipsis = "..."
)

// Advisory texts attached to a rendition.
const (
	TruncatedAdvisory   = "⚠️ Text too long for speech. Only the first 1000 characters will be spoken."
	LongTextAdvisory    = "⏳ Generating audio for a long message. This may take a moment."
	RateLimitedAdvisory = "⚠️ Speech service is busy (rate limited). Please try again in a moment."
	FailedAdvisory      = "❌ Could not generate audio for this message."
)

var (
	ErrTurnNotFound = errors.New("turn not found")
	ErrNotAssistant = errors.New("only assistant turns can be spoken")
)

// Synthesizer is the text-to-speech collaborator.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language, voice string, slow bool) ([]byte, error)
}

// Lookup is the answer of GetOrMarkMiss. On a miss Text holds the prepared
// synthesis input.
type Lookup struct {
	Key        session.AudioKey
	Audio      []byte
	Hit        bool
	Text       string
	Advisories []string
}

// Rendition is the outcome of Render. Audio is nil when synthesis failed; the
// advisories then explain why.
type Rendition struct {
	TurnIndex   int      `json:"turnIndex"`
	Audio       []byte   `json:"audio,omitempty"`
	Cached      bool     `json:"cached"`
	Advisories  []string `json:"advisories,omitempty"`
	RateLimited bool     `json:"rateLimited,omitempty"`
}

// Manager coordinates the session cache with the synthesizer.
type Manager struct {
	synth Synthesizer
}

// NewManager creates a cache manager. synth may be nil when only lookups are used.
func NewManager(synth Synthesizer) *Manager {
	return &Manager{synth: synth}
}

// GetOrMarkMiss returns cached audio for the key, or on a miss the text to
// synthesize with any length advisories. It never calls the synthesizer.
func (m *Manager) GetOrMarkMiss(state *session.State, turnIndex int, text, languageCode, voiceParam string) Lookup {
	key := session.AudioKey{TurnIndex: turnIndex, Language: languageCode, Voice: voiceParam}
	if audio, ok := state.CachedAudio(key); ok {
		return Lookup{Key: key, Audio: audio, Hit: true}
	}

	prepared, advisories := Prepare(text)
	return Lookup{Key: key, Text: prepared, Advisories: advisories}
}

// Store records synthesized audio under key.
func (m *Manager) Store(state *session.State, key session.AudioKey, audio []byte) {
	state.StoreAudio(key, audio)
}

// Render speaks the assistant turn at turnIndex in the session's current
// language, voice and speed. Failures are reported as advisories and are not
// cached, so a later call retries.
func (m *Manager) Render(ctx context.Context, state *session.State, turnIndex int) (*Rendition, error) {
	turn, ok := state.Turn(turnIndex)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTurnNotFound, turnIndex)
	}
	if turn.Role != chat.RoleAssistant {
		return nil, fmt.Errorf("%w: turn %d", ErrNotAssistant, turnIndex)
	}

	lookup := m.GetOrMarkMiss(state, turnIndex, turn.Content, state.Language().SynthesisLocale, state.Voice().Param)
	if lookup.Hit {
		return &Rendition{TurnIndex: turnIndex, Audio: lookup.Audio, Cached: true}, nil
	}
	if m.synth == nil {
		return nil, errors.New("no synthesizer configured")
	}

	rendition := &Rendition{TurnIndex: turnIndex, Advisories: lookup.Advisories}

	audio, err := m.synth.Synthesize(ctx, lookup.Text, lookup.Key.Language, lookup.Key.Voice, state.Slow())
	if err == nil && len(audio) == 0 {
		err = errors.New("synthesizer returned no audio")
	}
	if err != nil {
		rendition.RateLimited = errors.Is(err, speech.ErrRateLimited)
		if rendition.RateLimited {
			rendition.Advisories = append(rendition.Advisories, RateLimitedAdvisory)
		} else {
			rendition.Advisories = append(rendition.Advisories, FailedAdvisory)
		}
		log.Warn().
			Str("component", "tts").
			Str("session", state.ID()).
			Int("turn", turnIndex).
			Bool("rate_limited", rendition.RateLimited).
			Err(err).
			Msg("synthesis failed")
		return rendition, nil
	}

	m.Store(state, lookup.Key, audio)
	rendition.Audio = audio
	return rendition, nil
}

// Prepare applies the length policy: text longer than MaxChars runes is cut
// to MaxChars plus an ellipsis; text longer than SlowChars gets a latency
// advisory.
func Prepare(text string) (string, []string) {
	runes := []rune(text)
	switch {
	case len(runes) > MaxChars:
		return string(runes[:MaxChars]) + ellipsis, []string{TruncatedAdvisory}
	case len(runes) > SlowChars:
		return text, []string{LongTextAdvisory}
	default:
		return text, nil
	}
}
