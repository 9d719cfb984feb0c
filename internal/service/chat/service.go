package chat

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/parley/backend/internal/model/chat"
	"github.com/zhouzirui/parley/backend/internal/model/language"
	"github.com/zhouzirui/parley/backend/internal/model/persona"
	"github.com/zhouzirui/parley/backend/internal/model/voice"
	"github.com/zhouzirui/parley/backend/internal/service/conversation"
	"github.com/zhouzirui/parley/backend/internal/service/ttscache"
	"github.com/zhouzirui/parley/backend/internal/session"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSpeechDisabled  = errors.New("speech service is not configured")
)

// Options carries the session defaults.
type Options struct {
	DefaultPersonality string
	DefaultLanguage    string
	DefaultVoice       string
	// AutoSpeak renders every model reply right after it is appended.
	AutoSpeak bool
}

// Snapshot is a read-only copy of a session for rendering.
type Snapshot struct {
	ID          string            `json:"id"`
	CreatedAt   time.Time         `json:"createdAt"`
	Personality persona.Persona   `json:"personality"`
	Language    language.Language `json:"language"`
	Voice       voice.Voice       `json:"voice"`
	Slow        bool              `json:"slow"`
	Turns       []chat.Turn       `json:"turns"`
	CachedAudio int               `json:"cachedAudio"`
}

type entry struct {
	mu    sync.Mutex
	state *session.State
}

// Service owns the live sessions and runs interactions against them. Calls on
// one session are serialized; different sessions proceed independently.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	catalog      session.Catalog
	conversation *conversation.Manager
	tts          *ttscache.Manager
	transcriber  Transcriber
	synthEnabled bool
	opts         Options
}

// NewService wires the pipeline. synth and transcriber may be nil, which
// disables speaking and transcription.
func NewService(catalog session.Catalog, converser conversation.Converser, synth ttscache.Synthesizer, transcriber Transcriber, opts Options) *Service {
	if catalog == nil {
		catalog = session.NewCatalog(nil)
	}
	if opts.DefaultPersonality == "" {
		opts.DefaultPersonality = persona.DefaultID
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = language.DefaultID
	}
	if opts.DefaultVoice == "" {
		opts.DefaultVoice = voice.DefaultID
	}

	return &Service{
		sessions:     make(map[string]*entry),
		catalog:      catalog,
		conversation: conversation.NewManager(converser),
		tts:          ttscache.NewManager(synth),
		transcriber:  transcriber,
		synthEnabled: synth != nil,
		opts:         opts,
	}
}

// CreateSession starts a session. Blank selections fall back to the defaults.
func (s *Service) CreateSession(personalityID, languageID, voiceID string) (Snapshot, error) {
	state, err := session.New(s.catalog,
		fallback(personalityID, s.opts.DefaultPersonality),
		fallback(languageID, s.opts.DefaultLanguage),
		fallback(voiceID, s.opts.DefaultVoice),
	)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	s.sessions[state.ID()] = &entry{state: state}
	s.mu.Unlock()

	log.Info().Str("session", state.ID()).Str("personality", state.Personality().ID).Msg("session created")
	return snapshot(state), nil
}

// GetSession returns a snapshot of the session.
func (s *Service) GetSession(id string) (Snapshot, error) {
	var snap Snapshot
	err := s.withSession(id, func(state *session.State) error {
		snap = snapshot(state)
		return nil
	})
	return snap, err
}

// DeleteSession discards the session and everything it holds.
func (s *Service) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	log.Info().Str("session", id).Msg("session deleted")
	return nil
}

// ListSessions returns snapshots ordered by creation time.
func (s *Service) ListSessions() []Snapshot {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		snaps = append(snaps, snapshot(e.state))
		e.mu.Unlock()
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.Before(snaps[j].CreatedAt)
	})
	return snaps
}

// withSession runs fn while holding the session's lock.
func (s *Service) withSession(id string, fn func(state *session.State) error) error {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.state)
}

func snapshot(state *session.State) Snapshot {
	return Snapshot{
		ID:          state.ID(),
		CreatedAt:   state.CreatedAt(),
		Personality: state.Personality(),
		Language:    state.Language(),
		Voice:       state.Voice(),
		Slow:        state.Slow(),
		Turns:       state.Turns(),
		CachedAudio: state.CachedAudioCount(),
	}
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
