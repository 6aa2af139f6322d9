package core

import "context"

// ImageService is what the interaction surfaces talk to. Sessions are
// addressed by id and created on first use.
type ImageService interface {
	Submit(ctx context.Context, sessionId string, req GenerationRequest) ([]Artifact, error)
	Clear(sessionId string) error
	Images(sessionId string) ([]Artifact, error)
	Settings(sessionId string) Settings
	SaveSettings(sessionId string, settings Settings) error
}
