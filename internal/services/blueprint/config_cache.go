package blueprint

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/store"
)

// DefaultConfigTTL is how long a merged configuration is reused.
const DefaultConfigTTL = 5 * time.Minute

const configCacheSize = 256

// ConfigCache holds merged blueprint configurations per studio and show
// style variant. Entries expire after the TTL and are dropped explicitly when
// a studio or show style changes.
type ConfigCache struct {
	store *store.Store
	lru   *expirable.LRU[string, map[string]any]
}

// NewConfigCache creates a cache reading from st.
func NewConfigCache(st *store.Store, ttl time.Duration) *ConfigCache {
	if ttl <= 0 {
		ttl = DefaultConfigTTL
	}
	return &ConfigCache{
		store: st,
		lru:   expirable.NewLRU[string, map[string]any](configCacheSize, nil, ttl),
	}
}

func configKey(studio models.StudioID, base models.ShowStyleBaseID, variant models.ShowStyleVariantID) string {
	return string(studio) + "/" + string(base) + "/" + string(variant)
}

// Get returns the configuration for a rundown: the studio configuration
// overlaid with the show style base and then the variant configuration.
// The returned map is a copy.
func (c *ConfigCache) Get(ctx context.Context, studio models.StudioID, base models.ShowStyleBaseID, variant models.ShowStyleVariantID) (map[string]any, error) {
	key := configKey(studio, base, variant)
	if cfg, ok := c.lru.Get(key); ok {
		return maps.Clone(cfg), nil
	}

	cfg := make(map[string]any)
	if s, err := c.store.Studios.FindByID(ctx, string(studio)); err != nil {
		return nil, fmt.Errorf("load studio config: %w", err)
	} else if s != nil {
		maps.Copy(cfg, s.BlueprintConfig)
	}
	if base != "" {
		ss, err := c.store.ShowStyleBases.FindByID(ctx, string(base))
		if err != nil {
			return nil, fmt.Errorf("load show style config: %w", err)
		}
		if ss != nil {
			maps.Copy(cfg, ss.BlueprintConfig)
		}
	}
	if variant != "" {
		v, err := c.store.ShowStyleVariants.FindByID(ctx, string(variant))
		if err != nil {
			return nil, fmt.Errorf("load variant config: %w", err)
		}
		if v != nil {
			maps.Copy(cfg, v.BlueprintConfig)
		}
	}

	c.lru.Add(key, cfg)
	return maps.Clone(cfg), nil
}

// InvalidateStudio drops every entry of a studio.
func (c *ConfigCache) InvalidateStudio(studio models.StudioID) {
	c.invalidate(func(parts []string) bool { return parts[0] == string(studio) })
}

// InvalidateShowStyle drops every entry that uses a show style base.
func (c *ConfigCache) InvalidateShowStyle(base models.ShowStyleBaseID) {
	c.invalidate(func(parts []string) bool { return parts[1] == string(base) })
}

// Purge drops everything.
func (c *ConfigCache) Purge() {
	c.lru.Purge()
}

// Len returns the number of cached configurations.
func (c *ConfigCache) Len() int {
	return c.lru.Len()
}

func (c *ConfigCache) invalidate(match func(parts []string) bool) {
	for _, key := range c.lru.Keys() {
		if parts := strings.SplitN(key, "/", 3); len(parts) == 3 && match(parts) {
			c.lru.Remove(key)
		}
	}
}
