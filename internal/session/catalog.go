package session

import (
	"github.com/zhouzirui/parley/backend/internal/model/language"
	"github.com/zhouzirui/parley/backend/internal/model/persona"
	"github.com/zhouzirui/parley/backend/internal/model/voice"
)

// Catalog resolves the enumerated configuration sets a session may select from.
type Catalog interface {
	Persona(id string) (persona.Persona, bool)
	Language(id string) (language.Language, bool)
	Voice(id string) (voice.Voice, bool)
}

type defaultCatalog struct {
	personas persona.Store
}

// NewCatalog builds a Catalog over the given persona store and the built-in
// language and voice sets.
func NewCatalog(personas persona.Store) Catalog {
	if personas == nil {
		personas = persona.NewMemoryStore(persona.Seed())
	}
	return defaultCatalog{personas: personas}
}

func (c defaultCatalog) Persona(id string) (persona.Persona, bool) {
	return c.personas.FindByID(id)
}

func (c defaultCatalog) Language(id string) (language.Language, bool) {
	return language.Find(id)
}

func (c defaultCatalog) Voice(id string) (voice.Voice, bool) {
	return voice.Find(id)
}
