// Package cache keeps materialised section trees. Trees are immutable once
// a document is parsed, so entries only need dropping on delete.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dgallion1/docoutline/internal/models"
)

// TreeCache is a best-effort store of section trees keyed by document id.
// Failures are logged, never returned.
type TreeCache interface {
	Get(ctx context.Context, documentID string) (*models.DocumentTree, bool)
	Set(ctx context.Context, documentID string, tree *models.DocumentTree)
	Invalidate(ctx context.Context, documentID string)
}

// Nop caches nothing.
type Nop struct{}

func (Nop) Get(context.Context, string) (*models.DocumentTree, bool) { return nil, false }
func (Nop) Set(context.Context, string, *models.DocumentTree)        {}
func (Nop) Invalidate(context.Context, string)                       {}

const keyPrefix = "docoutline:tree:"

// Redis stores trees as JSON with a TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, log *slog.Logger) *Redis {
	return &Redis{client: client, ttl: ttl, log: log}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string, ttl time.Duration, log *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	opts.ContextTimeoutEnabled = true
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedis(client, ttl, log), nil
}

func (r *Redis) Get(ctx context.Context, documentID string) (*models.DocumentTree, bool) {
	data, err := r.client.Get(ctx, keyPrefix+documentID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.log.Warn("tree cache get failed", "doc_id", documentID, "error", err)
		return nil, false
	}
	var tree models.DocumentTree
	if err := json.Unmarshal(data, &tree); err != nil {
		r.log.Warn("tree cache entry corrupt", "doc_id", documentID, "error", err)
		return nil, false
	}
	return &tree, true
}

func (r *Redis) Set(ctx context.Context, documentID string, tree *models.DocumentTree) {
	data, err := json.Marshal(tree)
	if err != nil {
		r.log.Warn("tree cache encode failed", "doc_id", documentID, "error", err)
		return
	}
	if err := r.client.Set(ctx, keyPrefix+documentID, data, r.ttl).Err(); err != nil {
		r.log.Warn("tree cache set failed", "doc_id", documentID, "error", err)
	}
}

func (r *Redis) Invalidate(ctx context.Context, documentID string) {
	if err := r.client.Del(ctx, keyPrefix+documentID).Err(); err != nil {
		r.log.Warn("tree cache invalidate failed", "doc_id", documentID, "error", err)
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
