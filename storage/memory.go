package storage

import (
	"sync"

	"Dreamy/core"
)

type MemoryStorage struct {
	images   map[string][]core.Artifact
	settings map[string]core.Settings
	mutex    sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		images:   make(map[string][]core.Artifact),
		settings: make(map[string]core.Settings),
	}
}

func (m *MemoryStorage) GetImages(sessionId string) ([]core.Artifact, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return cloneImages(m.images[sessionId]), nil
}

func (m *MemoryStorage) AppendImages(sessionId string, images []core.Artifact) error {
	if len(images) == 0 {
		return nil
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.images[sessionId] = append(m.images[sessionId], cloneImages(images)...)
	return nil
}

func (m *MemoryStorage) ClearImages(sessionId string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.images, sessionId)
	return nil
}

func (m *MemoryStorage) DeleteSession(sessionId string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.images, sessionId)
	delete(m.settings, sessionId)
	return nil
}

func (m *MemoryStorage) GetSettings(sessionId string) (*core.Settings, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if s, ok := m.settings[sessionId]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *MemoryStorage) SaveSettings(sessionId string, settings core.Settings) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.settings[sessionId] = settings
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
