// Package cache holds read-through caches for stock summaries.
package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// SummaryCache stores encoded aggregation results keyed by query parameters.
// Invalidate drops every entry; any engine mutation may affect any aggregate.
//
// Readers take Generation before computing a result and hand it back to Set.
// Set drops the value when an Invalidate happened in between, so a result
// computed from pre-mutation data is never cached.
type SummaryCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Generation(ctx context.Context) (int64, error)
	Set(ctx context.Context, key string, value []byte, generation int64) error
	Invalidate(ctx context.Context) error
}

// Key builds a stable cache key from a query name and its parameters.
func Key(name string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%s", k, params[k])
	}
	return b.String()
}

// NoopCache never stores anything.
type NoopCache struct{}

func (NoopCache) Get(_ context.Context, _ string) ([]byte, bool, error) { return nil, false, nil }

func (NoopCache) Generation(_ context.Context) (int64, error) { return 0, nil }

func (NoopCache) Set(_ context.Context, _ string, _ []byte, _ int64) error { return nil }

func (NoopCache) Invalidate(_ context.Context) error { return nil }

// DefaultTTL matches the dashboard refresh interval.
const DefaultTTL = 5 * time.Minute
