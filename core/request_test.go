package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	for _, s := range []string{"256x256", "512x512", "1024x1024"} {
		size, err := ParseSize(s)
		require.NoError(t, err)
		assert.Equal(t, s, string(size))
	}

	_, err := ParseSize("1792x1024")
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestGenerationRequest_Validate(t *testing.T) {
	tests := []struct {
		name string
		req  GenerationRequest
		err  error
	}{
		{"valid", GenerationRequest{Prompt: "a red fox in snow", Size: Size512, Count: 3}, nil},
		{"bounds", GenerationRequest{Prompt: "x", Size: Size1024, Count: MaxImages}, nil},
		{"empty", GenerationRequest{Prompt: "", Size: Size256, Count: 1}, ErrEmptyPrompt},
		{"blank", GenerationRequest{Prompt: " \t\n", Size: Size256, Count: 1}, ErrEmptyPrompt},
		{"200 runes", GenerationRequest{Prompt: strings.Repeat("ё", 200), Size: Size256, Count: 1}, nil},
		{"201 chars", GenerationRequest{Prompt: strings.Repeat("a", 201), Size: Size256, Count: 1}, ErrPromptTooLong},
		{"no size", GenerationRequest{Prompt: "x", Count: 1}, ErrInvalidSize},
		{"count low", GenerationRequest{Prompt: "x", Size: Size256, Count: 0}, ErrInvalidCount},
		{"count high", GenerationRequest{Prompt: "x", Size: Size256, Count: 6}, ErrInvalidCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestSettings_Normalize(t *testing.T) {
	assert.Equal(t, DefaultSettings(), Settings{}.Normalize())
	assert.Equal(t, Settings{Size: Size512, Count: 1}, Settings{Size: Size512, Count: 10}.Normalize())
	assert.Equal(t, Settings{Size: Size256, Count: 5}, Settings{Size: "huge", Count: 5}.Normalize())
	assert.Equal(t, Settings{Size: Size1024, Count: 2}, Settings{Size: Size1024, Count: 2}.Normalize())
}

func TestArtifact_ContentType(t *testing.T) {
	png := Artifact("\x89PNG\r\n\x1a\n0000")
	assert.Equal(t, "image/png", png.ContentType())
	assert.Equal(t, "image/gif", Artifact("GIF89a....").ContentType())
	assert.Equal(t, "image/png", Artifact("plain text").ContentType())
}
