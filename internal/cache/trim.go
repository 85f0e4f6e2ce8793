package cache

import (
	"context"

	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/logging"
)

// Trim bounds a namespace to maxEntries by deleting the oldest insertions
// first. It is idempotent and safe to call after every write. Trimming is
// best-effort: enumeration or delete failures are logged and swallowed so
// they can never fail the caller's primary operation.
func Trim(ctx context.Context, store Store, namespace string, maxEntries int) {
	if maxEntries <= 0 {
		return
	}
	keys, err := store.Keys(ctx, namespace)
	if err != nil {
		logging.Warnf("cache trim: enumerate %s: %v", namespace, err)
		return
	}
	excess := len(keys) - maxEntries
	for i := 0; i < excess; i++ {
		if err := store.Delete(ctx, namespace, keys[i]); err != nil {
			logging.Warnf("cache trim: delete %s from %s: %v", keys[i], namespace, err)
		}
	}
}
