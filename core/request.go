package core

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

const (
	MaxPromptLength = 200
	MinImages       = 1
	MaxImages       = 5
)

type Size string

const (
	Size256  Size = "256x256"
	Size512  Size = "512x512"
	Size1024 Size = "1024x1024"
)

// Sizes returns the supported sizes in selector order
func Sizes() []Size {
	return []Size{Size256, Size512, Size1024}
}

func ParseSize(s string) (Size, error) {
	for _, size := range Sizes() {
		if string(size) == s {
			return size, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSize, s)
}

// GenerationRequest is built fresh for every submission and never stored
type GenerationRequest struct {
	Prompt string
	Size   Size
	Count  int
}

func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return ErrEmptyPrompt
	}
	if utf8.RuneCountInString(r.Prompt) > MaxPromptLength {
		return ErrPromptTooLong
	}
	if _, err := ParseSize(string(r.Size)); err != nil {
		return err
	}
	if r.Count < MinImages || r.Count > MaxImages {
		return fmt.Errorf("%w: %d", ErrInvalidCount, r.Count)
	}
	return nil
}

// Artifact is one decoded image exactly as the provider produced it
type Artifact []byte

func (a Artifact) ContentType() string {
	ct := http.DetectContentType(a)
	if !strings.HasPrefix(ct, "image/") {
		return "image/png"
	}
	return ct
}

// Settings are the display parameters last used in a session
type Settings struct {
	Size  Size `bson:"size" json:"size"`
	Count int  `bson:"count" json:"count"`
}

func DefaultSettings() Settings {
	return Settings{Size: Size256, Count: MinImages}
}

// Normalize replaces out of range values with defaults
func (s Settings) Normalize() Settings {
	def := DefaultSettings()
	if _, err := ParseSize(string(s.Size)); err != nil {
		s.Size = def.Size
	}
	if s.Count < MinImages || s.Count > MaxImages {
		s.Count = def.Count
	}
	return s
}
