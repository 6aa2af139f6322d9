package gallery

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"Dreamy/core"
	"Dreamy/lib/sl"
	"Dreamy/storage"
)

// Generator produces base64 encoded images for a request
type Generator interface {
	Generate(ctx context.Context, req core.GenerationRequest) ([]string, error)
}

// Session is the image collection of one user interaction. Its images only
// grow by whole successful responses and shrink only by Clear.
type Session struct {
	id        string
	generator Generator
	store     storage.Storage
	log       *slog.Logger
}

func NewSession(id string, generator Generator, store storage.Storage, log *slog.Logger) *Session {
	return &Session{
		id:        id,
		generator: generator,
		store:     store,
		log:       log.With(sl.Session(id)),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Submit sends one generation request and appends the decoded images.
// Invalid input never reaches the generator. A batch with any undecodable
// payload is rejected as a whole with ErrMalformedImage.
func (s *Session) Submit(ctx context.Context, req core.GenerationRequest) ([]core.Artifact, error) {
	s.remember(req)

	if err := req.Validate(); err != nil {
		s.log.Debug("request rejected", sl.Err(err))
		return nil, err
	}

	s.log.With(
		slog.String("prompt", sl.Truncate(req.Prompt, 50)),
		slog.String("size", string(req.Size)),
		slog.Int("count", req.Count),
	).Info("generating images")

	payloads, err := s.generator.Generate(ctx, req)
	if err != nil {
		s.log.Error("generating images", sl.Err(err))
		return nil, err
	}
	if len(payloads) == 0 {
		s.log.Warn("provider returned no images")
		return nil, core.ErrNoImages
	}

	images, err := decode(payloads)
	if err != nil {
		s.log.Error("decoding images", sl.Err(err))
		return nil, err
	}

	if err := s.store.AppendImages(s.id, images); err != nil {
		return nil, fmt.Errorf("storing images: %w", err)
	}
	s.log.Info("images added", slog.Int("count", len(images)))

	return images, nil
}

func decode(payloads []string) ([]core.Artifact, error) {
	images := make([]core.Artifact, 0, len(payloads))
	for i, payload := range payloads {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: image %d: %v", core.ErrMalformedImage, i+1, err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: image %d is empty", core.ErrMalformedImage, i+1)
		}
		images = append(images, data)
	}
	return images, nil
}

// remember keeps valid size and count as the session's form defaults
func (s *Session) remember(req core.GenerationRequest) {
	err := s.SaveSettings(core.Settings{Size: req.Size, Count: req.Count})
	if err != nil && !core.IsWarning(err) {
		s.log.Warn("saving settings", sl.Err(err))
	}
}

// SaveSettings stores the display parameters, rejecting unsupported values
func (s *Session) SaveSettings(settings core.Settings) error {
	if _, err := core.ParseSize(string(settings.Size)); err != nil {
		return err
	}
	if settings.Count < core.MinImages || settings.Count > core.MaxImages {
		return fmt.Errorf("%w: %d", core.ErrInvalidCount, settings.Count)
	}
	if err := s.store.SaveSettings(s.id, settings); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// Clear empties the collection, clearing an empty session is a no-op
func (s *Session) Clear() error {
	if err := s.store.ClearImages(s.id); err != nil {
		return fmt.Errorf("clearing images: %w", err)
	}
	s.log.Info("images cleared")
	return nil
}

func (s *Session) Images() ([]core.Artifact, error) {
	images, err := s.store.GetImages(s.id)
	if err != nil {
		return nil, fmt.Errorf("getting images: %w", err)
	}
	return images, nil
}

func (s *Session) Settings() core.Settings {
	settings, err := s.store.GetSettings(s.id)
	if err != nil {
		s.log.Warn("getting settings", sl.Err(err))
	}
	if settings == nil {
		return core.DefaultSettings()
	}
	return settings.Normalize()
}

// Close ends the session and drops everything stored for it
func (s *Session) Close() error {
	if err := s.store.DeleteSession(s.id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
