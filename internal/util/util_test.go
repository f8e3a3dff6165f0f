package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPtr(t *testing.T) {
	i := Ptr(42)
	assert.Equal(t, 42, *i)

	s := Ptr("hello")
	assert.Equal(t, "hello", *s)

	b := Ptr(true)
	assert.True(t, *b)
}

func TestShorten(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		max      int
		expected string
	}{
		{"shorter than max", "abc", 10, "abc"},
		{"exactly max", "abcde", 5, "abcde"},
		{"longer than max", "abcdef", 5, "abcd…"},
		{"multibyte runes", "héllo wörld", 6, "héllo…"},
		{"max one", "abc", 1, "…"},
		{"max zero", "abc", 0, ""},
		{"empty", "", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Shorten(tt.input, tt.max))
		})
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"single line", "hello", "hello"},
		{"two lines", "first\nsecond", "first"},
		{"crlf", "first\r\nsecond", "first"},
		{"leading newline", "\nbody", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FirstLine(tt.input))
		})
	}
}
