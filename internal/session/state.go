package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/parley/backend/internal/model/chat"
	"github.com/zhouzirui/parley/backend/internal/model/language"
	"github.com/zhouzirui/parley/backend/internal/model/persona"
	"github.com/zhouzirui/parley/backend/internal/model/voice"
)

var (
	ErrUnknownPersona  = errors.New("unknown personality")
	ErrUnknownLanguage = errors.New("unknown language")
	ErrUnknownVoice    = errors.New("unknown voice")
	ErrEmptyContent    = errors.New("turn content is empty")
	ErrInvalidRole     = errors.New("invalid turn role")
)

// AudioKey identifies one synthesized rendering of a turn.
type AudioKey struct {
	TurnIndex int
	Language  string
	Voice     string
}

// State is the mutable record of one conversation. It is not safe for
// concurrent use; callers serialize interactions per session.
type State struct {
	id        string
	createdAt time.Time
	catalog   Catalog

	turns       []chat.Turn
	personality persona.Persona
	language    language.Language
	voice       voice.Voice
	slow        bool
	audio       map[AudioKey][]byte
}

// New creates a session with the given selections, each of which must exist
// in the catalog.
func New(catalog Catalog, personaID, languageID, voiceID string) (*State, error) {
	p, ok := catalog.Persona(personaID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPersona, personaID)
	}
	l, ok := catalog.Language(languageID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, languageID)
	}
	v, ok := catalog.Voice(voiceID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVoice, voiceID)
	}

	return &State{
		id:          uuid.NewString(),
		createdAt:   time.Now().UTC(),
		catalog:     catalog,
		turns:       make([]chat.Turn, 0, 16),
		personality: p,
		language:    l,
		voice:       v,
		audio:       make(map[AudioKey][]byte),
	}, nil
}

func (s *State) ID() string                   { return s.id }
func (s *State) CreatedAt() time.Time         { return s.createdAt }
func (s *State) Personality() persona.Persona { return s.personality }
func (s *State) Language() language.Language  { return s.language }
func (s *State) Voice() voice.Voice           { return s.voice }
func (s *State) Slow() bool                   { return s.slow }

// Turns returns a copy of the transcript in insertion order.
func (s *State) Turns() []chat.Turn {
	return append([]chat.Turn(nil), s.turns...)
}

// Len returns the number of turns.
func (s *State) Len() int {
	return len(s.turns)
}

// Turn returns the turn at index.
func (s *State) Turn(index int) (chat.Turn, bool) {
	if index < 0 || index >= len(s.turns) {
		return chat.Turn{}, false
	}
	return s.turns[index], true
}

// Append adds a turn to the end of the transcript and returns its index.
func (s *State) Append(role chat.Role, content string) (int, error) {
	if !role.Valid() {
		return -1, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if strings.TrimSpace(content) == "" {
		return -1, ErrEmptyContent
	}

	s.turns = append(s.turns, chat.Turn{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	return len(s.turns) - 1, nil
}

// Clear drops every turn and all cached audio.
func (s *State) Clear() {
	s.turns = s.turns[:0]
	s.audio = make(map[AudioKey][]byte)
}

// SetPersonality switches the active personality. A different personality
// starts a fresh conversation; cached audio goes with it because turn indexes
// are reused.
func (s *State) SetPersonality(id string) error {
	p, ok := s.catalog.Persona(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPersona, id)
	}
	if p.ID == s.personality.ID {
		return nil
	}
	s.personality = p
	s.Clear()
	return nil
}

// SetLanguage switches the response and speech language. Cached audio is
// keyed by language so it stays valid.
func (s *State) SetLanguage(id string) error {
	l, ok := s.catalog.Language(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, id)
	}
	s.language = l
	return nil
}

// SetVoice switches the synthesis voice and drops cached audio.
func (s *State) SetVoice(id string) error {
	v, ok := s.catalog.Voice(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVoice, id)
	}
	if v.ID == s.voice.ID {
		return nil
	}
	s.voice = v
	s.audio = make(map[AudioKey][]byte)
	return nil
}

// SetSlow toggles slow playback for future syntheses.
func (s *State) SetSlow(slow bool) {
	s.slow = slow
}

// CachedAudio returns audio previously stored under key.
func (s *State) CachedAudio(key AudioKey) ([]byte, bool) {
	audio, ok := s.audio[key]
	return audio, ok
}

// StoreAudio records synthesized audio under key.
func (s *State) StoreAudio(key AudioKey, audio []byte) {
	s.audio[key] = audio
}

// CachedAudioCount reports how many renderings are cached.
func (s *State) CachedAudioCount() int {
	return len(s.audio)
}
