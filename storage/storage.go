package storage

import "Dreamy/core"

// ImageStorage keeps the ordered images of each session
type ImageStorage interface {
	// GetImages returns the images of a session in insertion order
	GetImages(sessionId string) ([]core.Artifact, error)
	// AppendImages adds all images or none of them
	AppendImages(sessionId string, images []core.Artifact) error
	ClearImages(sessionId string) error
	// DeleteSession drops everything stored for the session
	DeleteSession(sessionId string) error
	Close() error
}

// SettingsStorage keeps the display parameters last used in a session
type SettingsStorage interface {
	// GetSettings returns nil if the session has no saved settings
	GetSettings(sessionId string) (*core.Settings, error)
	SaveSettings(sessionId string, settings core.Settings) error
	Close() error
}

type Storage interface {
	ImageStorage
	SettingsStorage
}

func cloneImages(images []core.Artifact) []core.Artifact {
	out := make([]core.Artifact, len(images))
	for i, img := range images {
		out[i] = append(core.Artifact(nil), img...)
	}
	return out
}
