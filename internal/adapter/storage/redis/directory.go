package redis

import (
	"context"
	"encoding/json"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/inklane/artist-match-engine/internal/core/domain"
	"github.com/inklane/artist-match-engine/internal/core/port"
)

// Artist snapshots are heartbeaten into redis by the artist data collaborator
// under artist:<id> keys with a TTL; a key that lapsed means the artist went
// offline. Snapshots are read-only for the engine.
const (
	_artistKeyPattern = "artist:*"
	_rosterCacheKey   = "roster"
	_rosterCacheTTL   = 5 * time.Second
)

type artistDirectory struct {
	client redis.UniversalClient
	cache  *gocache.Cache
	log    *zap.Logger
}

// NewArtistDirectory creates a redis-backed artist directory with a short
// local TTL cache in front, so building pools for a burst of tasks does not
// hammer redis.
func NewArtistDirectory(client redis.UniversalClient, log *zap.Logger) port.ArtistDirectory {
	return &artistDirectory{
		client: client,
		cache:  gocache.New(_rosterCacheTTL, 2*_rosterCacheTTL),
		log:    log,
	}
}

func (d *artistDirectory) ListAvailable(ctx context.Context, task *domain.Task) ([]*domain.ArtistSnapshot, error) {
	if cached, ok := d.cache.Get(_rosterCacheKey); ok {
		return cached.([]*domain.ArtistSnapshot), nil
	}

	keys, err := d.client.Keys(ctx, _artistKeyPattern).Result()
	if err != nil {
		return nil, err
	}

	var artists []*domain.ArtistSnapshot
	for _, key := range keys {
		val, err := d.client.Get(ctx, key).Result()
		if err != nil {
			continue // key expired between KEYS and GET
		}

		var snapshot domain.ArtistSnapshot
		if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
			d.log.Warn("Dropping malformed artist snapshot",
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		artists = append(artists, &snapshot)
	}

	d.cache.Set(_rosterCacheKey, artists, gocache.DefaultExpiration)
	return artists, nil
}
