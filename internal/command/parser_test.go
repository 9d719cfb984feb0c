package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEachCategory(t *testing.T) {
	cases := []struct {
		input string
		want  Kind
	}{
		{input: "clear chat", want: ClearChat},
		{input: "please start over", want: ClearChat},
		{input: "can you change personality", want: ChangePersonality},
		{input: "speak faster", want: SpeakFaster},
		{input: "back to normal speed", want: SpeakFaster},
		{input: "could you slow down a bit", want: SpeakSlower},
		{input: "speak slower", want: SpeakSlower},
		{input: "help", want: Help},
		{input: "what can you do?", want: Help},
	}

	for _, tc := range cases {
		got, ok := Parse(Normalize(tc.input))
		assert.Truef(t, ok, "Parse(%q) should be a command", tc.input)
		assert.Equalf(t, tc.want, got, "Parse(%q)", tc.input)
	}
}

func TestParseEveryKeyword(t *testing.T) {
	for _, kind := range Kinds() {
		for _, word := range Keywords(kind) {
			got, ok := Parse(word)
			assert.True(t, ok, word)
			assert.Equal(t, kind, got, word)
		}
	}
}

func TestParseNotACommand(t *testing.T) {
	for _, input := range []string{
		"what is the capital of france",
		"tell me a joke",
		"how do i train for a marathon",
	} {
		_, ok := Parse(Normalize(input))
		assert.Falsef(t, ok, "Parse(%q) should not be a command", input)
	}
}

func TestParseKeepsSubstringFalsePositive(t *testing.T) {
	got, ok := Parse(Normalize("Help me with my homework"))
	assert.True(t, ok)
	assert.Equal(t, Help, got)
}

func TestParsePriorityOrder(t *testing.T) {
	got, ok := Parse("help, clear chat")
	assert.True(t, ok)
	assert.Equal(t, ClearChat, got)

	got, ok = Parse("speak slower or speak faster")
	assert.True(t, ok)
	assert.Equal(t, SpeakFaster, got)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "clear chat", Normalize("  Clear CHAT \n"))
}

func TestKindsOrder(t *testing.T) {
	assert.Equal(t, []Kind{ClearChat, ChangePersonality, SpeakFaster, SpeakSlower, Help}, Kinds())
	assert.Nil(t, Keywords(Kind("dance")))
}
