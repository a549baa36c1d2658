// Package lock serializes mutations of the same stock record across goroutines
// and, with redis, across instances.
package lock

import (
	"context"
	"sort"
)

// Release frees every key obtained by one Acquire call.
type Release func(ctx context.Context)

// Locker obtains exclusive ownership of a set of keys.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (Release, error)
}

// normalizeKeys dedupes and sorts keys so concurrent callers always lock in the
// same order.
func normalizeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
