package gallery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"Dreamy/core"
	"Dreamy/lib/sl"
	"Dreamy/storage"

	"github.com/robfig/cron/v3"
)

type entry struct {
	session  *Session
	lastSeen time.Time
}

// Manager owns the session lifecycle: a session is created on the first
// interaction with its id and ended explicitly or after being idle too long.
type Manager struct {
	generator Generator
	store     storage.Storage
	idleTTL   time.Duration
	log       *slog.Logger
	scheduler *cron.Cron
	now       func() time.Time

	mutex    sync.Mutex
	sessions map[string]*entry
}

func NewManager(generator Generator, store storage.Storage, idleTTL time.Duration, log *slog.Logger) *Manager {
	return &Manager{
		generator: generator,
		store:     store,
		idleTTL:   idleTTL,
		log:       log.With(sl.Module("gallery")),
		now:       time.Now,
		sessions:  make(map[string]*entry),
	}
}

// Session returns the session for id, creating it when missing
func (m *Manager) Session(id string) *Session {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		e = &entry{session: NewSession(id, m.generator, m.store, m.log)}
		m.sessions[id] = e
		m.log.Debug("session started", sl.Session(id))
	}
	e.lastSeen = m.now()
	return e.session
}

// End destroys a session and its stored state
func (m *Manager) End(id string) error {
	m.mutex.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mutex.Unlock()

	session := NewSession(id, m.generator, m.store, m.log)
	if ok {
		session = e.session
	}
	if err := session.Close(); err != nil {
		return err
	}
	m.log.Debug("session ended", sl.Session(id))
	return nil
}

// Sweep ends every session idle longer than the configured ttl and returns
// how many were ended
func (m *Manager) Sweep() int {
	if m.idleTTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.idleTTL)

	var idle []string
	m.mutex.Lock()
	for id, e := range m.sessions {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mutex.Unlock()

	ended := 0
	for _, id := range idle {
		if err := m.End(id); err != nil {
			m.log.Error("ending idle session", sl.Session(id), sl.Err(err))
			continue
		}
		ended++
	}
	if ended > 0 {
		m.log.Info("idle sessions ended", slog.Int("count", ended))
	}
	return ended
}

// StartSweeper runs Sweep on a cron schedule such as "@every 5m"
func (m *Manager) StartSweeper(spec string) error {
	m.scheduler = cron.New()
	if _, err := m.scheduler.AddFunc(spec, func() { m.Sweep() }); err != nil {
		return fmt.Errorf("scheduling sweeper: %w", err)
	}
	m.scheduler.Start()
	m.log.Info("session sweeper started", slog.String("schedule", spec), slog.Duration("idle_ttl", m.idleTTL))
	return nil
}

// Stop waits for a running sweep to finish
func (m *Manager) Stop() {
	if m.scheduler == nil {
		return
	}
	<-m.scheduler.Stop().Done()
	m.log.Info("session sweeper stopped")
}

func (m *Manager) Submit(ctx context.Context, sessionId string, req core.GenerationRequest) ([]core.Artifact, error) {
	return m.Session(sessionId).Submit(ctx, req)
}

func (m *Manager) Clear(sessionId string) error {
	return m.Session(sessionId).Clear()
}

func (m *Manager) Images(sessionId string) ([]core.Artifact, error) {
	return m.Session(sessionId).Images()
}

func (m *Manager) Settings(sessionId string) core.Settings {
	return m.Session(sessionId).Settings()
}

func (m *Manager) SaveSettings(sessionId string, settings core.Settings) error {
	return m.Session(sessionId).SaveSettings(settings)
}

var _ core.ImageService = (*Manager)(nil)
