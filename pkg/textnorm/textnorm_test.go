package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Open The GATE", "open the gate"},
		{"collapses whitespace", "  open   the\tgate ", "open the gate"},
		{"korean passthrough", "문을 열어줘", "문을 열어줘"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fold(tt.in))
		})
	}
}

func TestContainsAny(t *testing.T) {
	kw, ok := ContainsAny("Please OPEN the gate for me", []string{"secret", "open the gate"})
	assert.True(t, ok)
	assert.Equal(t, "open the gate", kw)

	_, ok = ContainsAny("hello there", []string{"secret"})
	assert.False(t, ok)

	_, ok = ContainsAny("anything", []string{""})
	assert.False(t, ok, "empty keywords never match")
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Quest Stage", Title("quest_stage"))
}
