package destination

import (
	"context"

	"github.com/lepinkainen/backlogsync/internal/config"
)

// Open validates the destination configuration and returns the selected
// client.
func Open(ctx context.Context, cfg *config.Config) (Client, error) {
	if err := cfg.ValidateDestination(); err != nil {
		return nil, err
	}

	d := cfg.Destination
	switch d.Backend {
	case "postgres":
		pg, err := ConnectPostgres(ctx, d.Postgres.DSN, d.PageSize)
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return NewREST(d.REST.BaseURL, d.REST.Token, d.PageSize, d.Timeout), nil
	}
}
