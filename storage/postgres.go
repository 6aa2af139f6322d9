package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"Dreamy/core"
	"Dreamy/lib/sl"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_images (
	session_id TEXT NOT NULL,
	seq        BIGSERIAL,
	data       BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (session_id, seq)
);
CREATE TABLE IF NOT EXISTS session_settings (
	session_id TEXT PRIMARY KEY,
	size       TEXT NOT NULL,
	count      INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

type PostgresStorage struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPostgresStorage(databaseURL string, log *slog.Logger) (*PostgresStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	config.MaxConns = 10

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &PostgresStorage{
		pool: pool,
		log:  log.With(sl.Module("postgres")),
	}, nil
}

func (p *PostgresStorage) GetImages(sessionId string) ([]core.Artifact, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := p.pool.Query(ctx,
		`SELECT data FROM session_images WHERE session_id = $1 ORDER BY seq`, sessionId)
	if err != nil {
		return nil, fmt.Errorf("querying images: %w", err)
	}
	images, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("reading images: %w", err)
	}

	out := make([]core.Artifact, len(images))
	for i, img := range images {
		out[i] = img
	}
	return out, nil
}

func (p *PostgresStorage) AppendImages(sessionId string, images []core.Artifact) error {
	if len(images) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			p.log.Warn("rolling back", sl.Err(err))
		}
	}()

	for _, img := range images {
		if _, err := tx.Exec(ctx,
			`INSERT INTO session_images (session_id, data) VALUES ($1, $2)`,
			sessionId, []byte(img)); err != nil {
			return fmt.Errorf("inserting image: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing images: %w", err)
	}
	return nil
}

func (p *PostgresStorage) ClearImages(sessionId string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := p.pool.Exec(ctx, `DELETE FROM session_images WHERE session_id = $1`, sessionId)
	return err
}

func (p *PostgresStorage) DeleteSession(sessionId string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM session_images WHERE session_id = $1`, sessionId)
	batch.Queue(`DELETE FROM session_settings WHERE session_id = $1`, sessionId)
	return p.pool.SendBatch(ctx, batch).Close()
}

func (p *PostgresStorage) GetSettings(sessionId string) (*core.Settings, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var size string
	var settings core.Settings
	err := p.pool.QueryRow(ctx,
		`SELECT size, count FROM session_settings WHERE session_id = $1`, sessionId).
		Scan(&size, &settings.Count)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding settings: %w", err)
	}
	settings.Size = core.Size(size)
	return &settings, nil
}

func (p *PostgresStorage) SaveSettings(sessionId string, settings core.Settings) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := p.pool.Exec(ctx, `
		INSERT INTO session_settings (session_id, size, count, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (session_id) DO UPDATE
		SET size = EXCLUDED.size, count = EXCLUDED.count, updated_at = EXCLUDED.updated_at`,
		sessionId, string(settings.Size), settings.Count)
	return err
}

func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}
