package fees

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lv-securities/internal/model"
	"lv-securities/internal/store"
	"lv-securities/internal/types"
)

// Provider reads fee schedules through the store and caches each category
// for a bounded window, so the matching path does not hit the platform
// configuration on every trade.
type Provider struct {
	db  store.DB
	ttl time.Duration

	mu     sync.Mutex
	cached map[types.FeeCategory]cachedSchedule
}

type cachedSchedule struct {
	schedule  model.FeeSchedule
	fetchedAt time.Time
}

func NewProvider(db store.DB, ttl time.Duration) *Provider {
	return &Provider{db: db, ttl: ttl, cached: make(map[types.FeeCategory]cachedSchedule)}
}

func (p *Provider) Schedule(ctx context.Context, category types.FeeCategory) (model.FeeSchedule, error) {
	p.mu.Lock()
	if c, ok := p.cached[category]; ok && time.Since(c.fetchedAt) < p.ttl {
		p.mu.Unlock()
		return c.schedule, nil
	}
	p.mu.Unlock()

	var s model.FeeSchedule
	err := p.db.View(ctx, func(tx store.Tx) error {
		var err error
		s, err = tx.GetFeeSchedule(ctx, category)
		return err
	})
	if err != nil {
		return s, fmt.Errorf("load fee schedule %s: %w", category, err)
	}

	p.mu.Lock()
	p.cached[category] = cachedSchedule{schedule: s, fetchedAt: time.Now()}
	p.mu.Unlock()
	return s, nil
}

// Invalidate drops cached schedules so the next read refreshes.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.cached = make(map[types.FeeCategory]cachedSchedule)
	p.mu.Unlock()
}
