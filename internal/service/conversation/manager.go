// Package conversation appends user turns, asks the language model for a
// reply and records it, including failures, in the transcript.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/parley/backend/internal/model/chat"
	"github.com/zhouzirui/parley/backend/internal/model/language"
	"github.com/zhouzirui/parley/backend/internal/model/persona"
	"github.com/zhouzirui/parley/backend/internal/session"
)

// EmptyMessageWarning is shown when a blank message is submitted.
const EmptyMessageWarning = "⚠️ Please enter a message before sending."

var (
	// ErrEmptyMessage rejects blank input before any turn is appended.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNoModel is reported in-band when no language model is configured.
	ErrNoModel = errors.New("language model is not configured")
)

// Converser is the language model collaborator.
type Converser interface {
	Converse(ctx context.Context, history []chat.Turn, message, instruction string) (string, error)
}

// Result describes the turns added by one submission.
type Result struct {
	UserIndex  int
	ReplyIndex int
	Reply      string
	// Err is the model failure that produced an in-band error turn, if any.
	Err error
}

// Manager drives one request/reply exchange against a session.
type Manager struct {
	converser Converser
}

// NewManager creates a manager backed by converser.
func NewManager(converser Converser) *Manager {
	return &Manager{converser: converser}
}

// Submit appends text as a user turn, sends the earlier turns and the combined
// instruction to the model, then appends the reply. A model failure becomes an
// assistant turn carrying the formatted error, so a valid submission always
// adds exactly two turns.
func (m *Manager) Submit(ctx context.Context, state *session.State, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	userIndex, err := state.Append(chat.RoleUser, text)
	if err != nil {
		return nil, err
	}

	turns := state.Turns()
	history := turns[:len(turns)-1]
	instruction := Instruction(state.Personality(), state.Language())

	result := &Result{UserIndex: userIndex}

	var reply string
	if m.converser == nil {
		err = ErrNoModel
	} else {
		reply, err = m.converser.Converse(ctx, history, text, instruction)
	}
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("model returned an empty reply")
	}
	if err != nil {
		log.Warn().Str("component", "conversation").Str("session", state.ID()).Err(err).Msg("model call failed")
		reply = FormatError(err)
		result.Err = err
	}

	replyIndex, appendErr := state.Append(chat.RoleAssistant, reply)
	if appendErr != nil {
		return nil, fmt.Errorf("append reply: %w", appendErr)
	}
	result.ReplyIndex = replyIndex
	result.Reply = reply
	return result, nil
}

// Instruction joins the personality instruction and the language directive.
func Instruction(p persona.Persona, l language.Language) string {
	return p.Instruction + "\n\n" + l.Directive
}

// FormatError renders a model failure as transcript text.
func FormatError(err error) string {
	return fmt.Sprintf("❌ Error: %v", err)
}
