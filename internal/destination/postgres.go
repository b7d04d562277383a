package destination

import (
	"context"
	stdErrors "errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/lepinkainen/backlogsync/internal/errors"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure
const uniqueViolation = "23505"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS games (
	id BIGSERIAL PRIMARY KEY,
	steam_app_id INTEGER UNIQUE,
	name TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'queued',
	cover_url TEXT NOT NULL DEFAULT '',
	release_date TEXT NOT NULL DEFAULT '',
	coming_soon BOOLEAN NOT NULL DEFAULT FALSE,
	early_access BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Postgres stores games in a single table. steam_app_id is nullable so games
// without a Steam listing can coexist under the unique constraint.
type Postgres struct {
	db       *sqlx.DB
	pageSize int
}

// NewPostgres wraps an open connection.
func NewPostgres(db *sqlx.DB, pageSize int) *Postgres {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Postgres{db: db, pageSize: pageSize}
}

// ConnectPostgres connects to dsn and makes sure the games table exists.
func ConnectPostgres(ctx context.Context, dsn string, pageSize int) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	p := NewPostgres(db, pageSize)
	if err := p.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// EnsureSchema creates the games table if needed.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create games table: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// List implements Client.
func (p *Postgres) List(ctx context.Context) ([]Game, error) {
	query := `
		SELECT id, COALESCE(steam_app_id, 0) AS steam_app_id, name, status,
			cover_url, release_date, coming_soon, early_access
		FROM games
		ORDER BY id
		LIMIT $1 OFFSET $2
	`

	var all []Game
	for offset := 0; ; offset += p.pageSize {
		var page []Game
		if err := p.db.SelectContext(ctx, &page, query, p.pageSize, offset); err != nil {
			return nil, fmt.Errorf("failed to list games: %w", err)
		}
		all = append(all, page...)
		if len(page) < p.pageSize {
			return all, nil
		}
	}
}

// Create implements Client.
func (p *Postgres) Create(ctx context.Context, g Game) (Game, error) {
	query := `
		INSERT INTO games (steam_app_id, name, status, cover_url, release_date, coming_soon, early_access)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := p.db.QueryRowxContext(ctx, query,
		nullableAppID(g.SteamAppID), g.Name, g.Status, g.CoverURL, g.ReleaseDate, g.ComingSoon, g.EarlyAccess,
	).Scan(&g.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return Game{}, errors.NewConflictError("games", "", fmt.Sprintf("steam app %d already exists", g.SteamAppID))
		}
		return Game{}, fmt.Errorf("failed to create %q: %w", g.Name, err)
	}
	return g, nil
}

// Update implements Client.
func (p *Postgres) Update(ctx context.Context, id int64, g Game) error {
	query := `
		UPDATE games
		SET steam_app_id = $1, name = $2, cover_url = $3, release_date = $4,
			coming_soon = $5, early_access = $6, updated_at = NOW()
		WHERE id = $7
	`

	res, err := p.db.ExecContext(ctx, query,
		nullableAppID(g.SteamAppID), g.Name, g.CoverURL, g.ReleaseDate, g.ComingSoon, g.EarlyAccess, id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.NewConflictError("games", "", fmt.Sprintf("steam app %d belongs to another game", g.SteamAppID))
		}
		return fmt.Errorf("failed to update game %d: %w", id, err)
	}
	return expectOneRow(res.RowsAffected, id)
}

// UpdateStatus implements Client.
func (p *Postgres) UpdateStatus(ctx context.Context, id int64, status string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE games SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update status of game %d: %w", id, err)
	}
	return expectOneRow(res.RowsAffected, id)
}

func expectOneRow(rowsAffected func() (int64, error), id int64) error {
	n, err := rowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return errors.NewNotFoundError(fmt.Sprintf("game %d", id))
	}
	return nil
}

func nullableAppID(id int) any {
	if id <= 0 {
		return nil
	}
	return id
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return stdErrors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
