package docstore

import (
	"context"
	stdErrors "errors"
	"fmt"

	"github.com/lepinkainen/backlogsync/internal/backlog"
	"github.com/lepinkainen/backlogsync/internal/errors"
	"github.com/redis/go-redis/v9"
)

const (
	fieldContent  = "content"
	fieldRevision = "revision"
	historyLimit  = 100
)

// Redis keeps the document in a Redis hash. Writes run under WATCH so a
// concurrent writer aborts the transaction instead of overwriting.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis creates a store for the document under key.
func NewRedis(client *redis.Client, key string) *Redis {
	return &Redis{client: client, key: key}
}

func (r *Redis) historyKey() string {
	return r.key + ":history"
}

func (r *Redis) Name() string {
	return "redis:" + r.key
}

// Close closes the underlying client
func (r *Redis) Close() error {
	return r.client.Close()
}

// Read implements Store.
func (r *Redis) Read(ctx context.Context) (backlog.Document, error) {
	vals, err := r.client.HMGet(ctx, r.key, fieldContent, fieldRevision).Result()
	if err != nil {
		return backlog.Document{}, errors.NewTransientError("read "+r.key, err)
	}
	return decodeHash(vals)
}

func decodeHash(vals []any) (backlog.Document, error) {
	content, _ := vals[0].(string)
	revision, _ := vals[1].(string)
	if revision == "" {
		return backlog.Document{Records: []backlog.Record{}}, nil
	}
	records, err := backlog.DecodeRecords([]byte(content))
	if err != nil {
		return backlog.Document{}, err
	}
	return backlog.Document{Records: records, Revision: backlog.Revision(revision)}, nil
}

// Write implements Store.
func (r *Redis) Write(ctx context.Context, records []backlog.Record, rev backlog.Revision, label string) (backlog.Revision, error) {
	if err := checkLabel(label); err != nil {
		return "", err
	}
	content, err := backlog.EncodeRecords(records)
	if err != nil {
		return "", err
	}
	next := chainRevision(rev, content)

	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, r.key, fieldRevision).Result()
		if err != nil && !stdErrors.Is(err, redis.Nil) {
			return errors.NewTransientError("write "+r.key, err)
		}
		if current != string(rev) {
			return errors.NewConflictError(r.key, string(rev), "document changed since it was read")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.key, fieldContent, content, fieldRevision, string(next))
			pipe.LPush(ctx, r.historyKey(), fmt.Sprintf("%s %s", next, label))
			pipe.LTrim(ctx, r.historyKey(), 0, historyLimit-1)
			return nil
		})
		return err
	}

	err = r.client.Watch(ctx, txf, r.key)
	switch {
	case err == nil:
		return next, nil
	case stdErrors.Is(err, redis.TxFailedErr):
		return "", errors.NewConflictError(r.key, string(rev), "document changed during write")
	case errors.IsConflictError(err), errors.IsTransientError(err):
		return "", err
	default:
		return "", errors.NewTransientError("write "+r.key, err)
	}
}

// History returns the most recent write labels, newest first.
func (r *Redis) History(ctx context.Context, limit int) ([]string, error) {
	entries, err := r.client.LRange(ctx, r.historyKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return entries, nil
}
