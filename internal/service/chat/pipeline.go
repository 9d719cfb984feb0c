package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/parley/backend/internal/command"
	"github.com/zhouzirui/parley/backend/internal/service/conversation"
	"github.com/zhouzirui/parley/backend/internal/service/speech"
	"github.com/zhouzirui/parley/backend/internal/service/ttscache"
	"github.com/zhouzirui/parley/backend/internal/session"
)

// Transcriber is the speech-to-text collaborator.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format, locale string) (string, error)
}

// Recognition advisories.
const (
	UnrecognizedAdvisory = "Could not understand audio. Please try again."
	unavailableFormat    = "Could not request results from speech recognition service: %v"
	transcribeFailFormat = "Error during transcription: %v"
)

// OutcomeKind tells how an input was handled.
type OutcomeKind string

const (
	OutcomeRejected OutcomeKind = "rejected"
	OutcomeCommand  OutcomeKind = "command"
	OutcomeReply    OutcomeKind = "reply"
)

// Outcome is the result of one interaction.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`
	// Command is set for OutcomeCommand.
	Command command.Kind `json:"command,omitempty"`
	// Feedback holds command feedback or the rejection warning.
	Feedback   string              `json:"feedback,omitempty"`
	UserIndex  int                 `json:"userIndex"`
	ReplyIndex int                 `json:"replyIndex"`
	Reply      string              `json:"reply,omitempty"`
	ModelError string              `json:"modelError,omitempty"`
	Speech     *ttscache.Rendition `json:"speech,omitempty"`
	Session    Snapshot            `json:"session"`
}

// Transcription is the result of a recognition attempt. Advisory is set when
// no usable text came back.
type Transcription struct {
	Text     string `json:"text,omitempty"`
	Advisory string `json:"advisory,omitempty"`
}

// OK reports whether text was recognized.
func (t Transcription) OK() bool {
	return t.Advisory == "" && t.Text != ""
}

// VoiceOutcome pairs a transcription with the interaction it triggered.
type VoiceOutcome struct {
	Transcription Transcription `json:"transcription"`
	Outcome       *Outcome      `json:"outcome,omitempty"`
}

// ConfigUpdate is a partial change of session configuration. Nil fields are
// left as they are.
type ConfigUpdate struct {
	Personality *string `json:"personality,omitempty"`
	Language    *string `json:"language,omitempty"`
	Voice       *string `json:"voice,omitempty"`
	Slow        *bool   `json:"slow,omitempty"`
}

// HandleInput classifies text as a command or a chat message and runs it.
func (s *Service) HandleInput(ctx context.Context, id, text string) (*Outcome, error) {
	var outcome *Outcome
	err := s.withSession(id, func(state *session.State) error {
		var err error
		outcome, err = s.handleInput(ctx, state, text)
		return err
	})
	return outcome, err
}

func (s *Service) handleInput(ctx context.Context, state *session.State, text string) (*Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return &Outcome{
			Kind:     OutcomeRejected,
			Feedback: conversation.EmptyMessageWarning,
			Session:  snapshot(state),
		}, nil
	}

	if kind, ok := command.Parse(command.Normalize(text)); ok {
		feedback := command.Execute(kind, state)
		log.Info().Str("session", state.ID()).Str("command", string(kind)).Msg("command executed")
		return &Outcome{
			Kind:     OutcomeCommand,
			Command:  kind,
			Feedback: feedback,
			Session:  snapshot(state),
		}, nil
	}

	result, err := s.conversation.Submit(ctx, state, text)
	if errors.Is(err, conversation.ErrEmptyMessage) {
		return &Outcome{Kind: OutcomeRejected, Feedback: conversation.EmptyMessageWarning, Session: snapshot(state)}, nil
	}
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Kind:       OutcomeReply,
		UserIndex:  result.UserIndex,
		ReplyIndex: result.ReplyIndex,
		Reply:      result.Reply,
	}
	if result.Err != nil {
		outcome.ModelError = result.Err.Error()
	} else if s.opts.AutoSpeak && s.synthEnabled {
		rendition, err := s.tts.Render(ctx, state, result.ReplyIndex)
		if err != nil {
			return nil, err
		}
		outcome.Speech = rendition
	}
	outcome.Session = snapshot(state)
	return outcome, nil
}

// Transcribe recognizes audio in the session's recognition locale. It never
// changes the transcript; failures come back as advisories.
func (s *Service) Transcribe(ctx context.Context, id string, audio []byte, format string) (Transcription, error) {
	var out Transcription
	err := s.withSession(id, func(state *session.State) error {
		var err error
		out, err = s.transcribe(ctx, state, audio, format)
		return err
	})
	return out, err
}

func (s *Service) transcribe(ctx context.Context, state *session.State, audio []byte, format string) (Transcription, error) {
	if s.transcriber == nil {
		return Transcription{}, ErrSpeechDisabled
	}

	text, err := s.transcriber.Transcribe(ctx, audio, format, state.Language().RecognitionLocale)
	text = strings.TrimSpace(text)
	if err == nil && text == "" {
		err = speech.ErrUnrecognized
	}
	if err != nil {
		log.Warn().Str("component", "asr").Str("session", state.ID()).Err(err).Msg("transcription failed")
		return Transcription{Advisory: recognitionAdvisory(err)}, nil
	}
	return Transcription{Text: text}, nil
}

// HandleVoice transcribes audio and, when text was recognized, handles it as
// input, so spoken commands work too.
func (s *Service) HandleVoice(ctx context.Context, id string, audio []byte, format string) (*VoiceOutcome, error) {
	var out *VoiceOutcome
	err := s.withSession(id, func(state *session.State) error {
		transcription, err := s.transcribe(ctx, state, audio, format)
		if err != nil {
			return err
		}
		out = &VoiceOutcome{Transcription: transcription}
		if !transcription.OK() {
			return nil
		}
		out.Outcome, err = s.handleInput(ctx, state, transcription.Text)
		return err
	})
	return out, err
}

// Speak renders the assistant turn at index through the audio cache.
func (s *Service) Speak(ctx context.Context, id string, index int) (*ttscache.Rendition, error) {
	if !s.synthEnabled {
		return nil, ErrSpeechDisabled
	}
	var rendition *ttscache.Rendition
	err := s.withSession(id, func(state *session.State) error {
		var err error
		rendition, err = s.tts.Render(ctx, state, index)
		return err
	})
	return rendition, err
}

// Configure applies an explicit selection. Every field is validated before
// any is applied, so a rejected update changes nothing.
func (s *Service) Configure(_ context.Context, id string, update ConfigUpdate) (Snapshot, error) {
	var snap Snapshot
	err := s.withSession(id, func(state *session.State) error {
		if update.Personality != nil {
			if _, ok := s.catalog.Persona(*update.Personality); !ok {
				return fmt.Errorf("%w: %q", session.ErrUnknownPersona, *update.Personality)
			}
		}
		if update.Language != nil {
			if _, ok := s.catalog.Language(*update.Language); !ok {
				return fmt.Errorf("%w: %q", session.ErrUnknownLanguage, *update.Language)
			}
		}
		if update.Voice != nil {
			if _, ok := s.catalog.Voice(*update.Voice); !ok {
				return fmt.Errorf("%w: %q", session.ErrUnknownVoice, *update.Voice)
			}
		}

		if update.Personality != nil {
			if err := state.SetPersonality(*update.Personality); err != nil {
				return err
			}
		}
		if update.Language != nil {
			if err := state.SetLanguage(*update.Language); err != nil {
				return err
			}
		}
		if update.Voice != nil {
			if err := state.SetVoice(*update.Voice); err != nil {
				return err
			}
		}
		if update.Slow != nil {
			state.SetSlow(*update.Slow)
		}

		snap = snapshot(state)
		return nil
	})
	return snap, err
}

func recognitionAdvisory(err error) string {
	switch {
	case errors.Is(err, speech.ErrUnrecognized):
		return UnrecognizedAdvisory
	case errors.Is(err, speech.ErrServiceUnavailable):
		return fmt.Sprintf(unavailableFormat, err)
	default:
		return fmt.Sprintf(transcribeFailFormat, err)
	}
}
