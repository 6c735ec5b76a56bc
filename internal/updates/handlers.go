package updates

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"

	"github.com/darmiel/satellite/internal/cache"
)

const (
	TypeConfigUpdate = "config_update"
	TypeCacheClear   = "cache_clear"
	TypeTenantUpdate = "tenant_update"
	TypeUserUpdate   = "user_update"
)

// OverrideTag is the cache tag holding runtime config overrides.
const OverrideTag = "config"

type ConfigUpdate struct {
	Key   string `mapstructure:"key"`
	Value any    `mapstructure:"value"`
}

type EntityUpdate struct {
	ID     string         `mapstructure:"id"`
	Name   string         `mapstructure:"name"`
	Status string         `mapstructure:"status"`
	Extra  map[string]any `mapstructure:",remain"`
}

func decode(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(data); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	return nil
}

// RegisterDefaults installs the built-in update handlers.
func RegisterDefaults(d *Dispatcher, c *cache.Cache) {
	d.Handle(TypeConfigUpdate, configUpdateHandler(c))
	d.Handle(TypeCacheClear, cacheClearHandler(c))
	d.Handle(TypeTenantUpdate, entityUpdateHandler(c, "tenants", "Tenant"))
	d.Handle(TypeUserUpdate, entityUpdateHandler(c, "users", "User"))
}

// configUpdateHandler stores the value as a runtime override. The loaded configuration is never mutated.
func configUpdateHandler(c *cache.Cache) HandlerFunc {
	return func(ctx context.Context, data map[string]any) (string, error) {
		var u ConfigUpdate
		if err := decode(data, &u); err != nil {
			return "", err
		}
		if u.Key == "" {
			return "Config update processed", nil
		}
		if err := c.PutTTL(ctx, OverrideTag, u.Key, u.Value, 0); err != nil {
			return "", fmt.Errorf("storing override %s: %w", u.Key, err)
		}
		return "Config updated: " + u.Key, nil
	}
}

// cacheClearHandler clears tags, keys or, with no selector, the whole cache namespace.
func cacheClearHandler(c *cache.Cache) HandlerFunc {
	return func(ctx context.Context, data map[string]any) (string, error) {
		var req cache.Request
		if err := decode(data, &req); err != nil {
			return "", err
		}
		if req.Empty() {
			req.All = true
		}
		msg, _, err := c.Clear(ctx, req)
		return msg, err
	}
}

func entityUpdateHandler(c *cache.Cache, tag, label string) HandlerFunc {
	return func(ctx context.Context, data map[string]any) (string, error) {
		var u EntityUpdate
		if err := decode(data, &u); err != nil {
			return "", err
		}
		if strings.TrimSpace(u.ID) == "" {
			return "", fmt.Errorf("%s update without id", strings.ToLower(label))
		}
		if err := c.Put(ctx, tag, u.ID, data); err != nil {
			return "", err
		}
		log.Info().Str("id", u.ID).Str("entity", tag).Msg("processing remote entity update")
		return label + " update processed", nil
	}
}
