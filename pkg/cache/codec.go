package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// SetJSON marshals value and stores it under key. Scalar values round-trip
// unchanged; structured values use a self-describing JSON encoding.
func SetJSON(ctx context.Context, c Cache, key string, ns Namespace, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, ns, data, ttl)
}

// GetJSON retrieves and unmarshals a JSON value into dest. It returns false
// on a miss. A payload that fails to unmarshal is treated as a miss, not an
// error; the stale entry is deleted so the next write replaces it.
func GetJSON(ctx context.Context, c Cache, key string, ns Namespace, dest any) (bool, error) {
	data, err := c.Get(ctx, key, ns)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		_ = c.Delete(ctx, key, ns)
		return false, nil
	}
	return true, nil
}
