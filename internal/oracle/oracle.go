package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Soar-Robotics/hashfarm/internal/models"
	"github.com/Soar-Robotics/hashfarm/internal/network"
	"github.com/Soar-Robotics/hashfarm/internal/store"

	"go.uber.org/zap"
)

// PriceStore is where the day's first price is recorded.
type PriceStore interface {
	GetPowerPrice(ctx context.Context, day string) (*models.PowerPrice, error)
	PutPowerPriceIfAbsent(ctx context.Context, price models.PowerPrice) (*models.PowerPrice, error)
}

// SignalSource provides the live network load.
type SignalSource interface {
	Snapshot(ctx context.Context) (network.Snapshot, error)
}

// Calendar maps a day key to its scheduled events.
type Calendar map[string][]Event

// Quote is today's price alongside yesterday's, when known.
type Quote struct {
	Day          string  `json:"day"`
	Price        float64 `json:"price"`
	Yesterday    float64 `json:"yesterday,omitempty"`
	HasYesterday bool    `json:"has_yesterday"`
	Delta        float64 `json:"delta,omitempty"`
}

// Oracle serves the daily power price.
type Oracle struct {
	store    PriceStore
	signals  SignalSource
	calendar Calendar
	now      func() time.Time
	logger   *zap.Logger

	mu    sync.Mutex
	cache map[string]float64
}

// New creates an oracle. now may be nil to use the wall clock.
func New(ps PriceStore, signals SignalSource, calendar Calendar, now func() time.Time, logger *zap.Logger) *Oracle {
	if now == nil {
		now = time.Now
	}
	return &Oracle{
		store:    ps,
		signals:  signals,
		calendar: calendar,
		now:      now,
		logger:   logger,
		cache:    make(map[string]float64),
	}
}

// Today returns the price for the current UTC day.
func (o *Oracle) Today(ctx context.Context) (float64, error) {
	return o.PriceFor(ctx, Day(o.now()))
}

// PriceFor returns the settled price for day. A price already in the store
// always wins over a freshly computed one.
func (o *Oracle) PriceFor(ctx context.Context, day string) (float64, error) {
	o.mu.Lock()
	if p, ok := o.cache[day]; ok {
		o.mu.Unlock()
		return p, nil
	}
	o.mu.Unlock()

	stored, err := o.store.GetPowerPrice(ctx, day)
	switch {
	case err == nil:
		o.remember(day, stored.Price)
		return stored.Price, nil
	case !errors.Is(err, store.ErrNotFound):
		o.logger.Warn("read power price failed", zap.String("day", day), zap.Error(err))
	}

	snap, err := o.signals.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("read network signals: %w", err)
	}
	computed := Price(day, Signals{
		TotalHashrate: snap.TotalHashrate,
		ActivePlayers: snap.ActivePlayers,
		Events:        o.calendar[day],
	})

	settled, err := o.store.PutPowerPriceIfAbsent(ctx, models.PowerPrice{
		Day:             day,
		Price:           computed,
		NetworkHashrate: snap.TotalHashrate,
		ActivePlayers:   snap.ActivePlayers,
		CreatedAt:       o.now().UTC(),
	})
	if err != nil {
		// Serve the local price but leave it uncached so the next call
		// retries the shared write.
		o.logger.Warn("store power price failed, serving computed price",
			zap.String("day", day), zap.Float64("price", computed), zap.Error(err))
		return computed, nil
	}
	if settled.Price != computed {
		o.logger.Debug("deferring to stored power price",
			zap.String("day", day), zap.Float64("stored", settled.Price), zap.Float64("computed", computed))
	}
	o.remember(day, settled.Price)
	return settled.Price, nil
}

// Quote returns today's price and, if the store has it, yesterday's.
func (o *Oracle) Quote(ctx context.Context) (Quote, error) {
	now := o.now()
	q := Quote{Day: Day(now)}
	price, err := o.PriceFor(ctx, q.Day)
	if err != nil {
		return Quote{}, err
	}
	q.Price = price

	yesterday := Day(now.AddDate(0, 0, -1))
	if prev, err := o.store.GetPowerPrice(ctx, yesterday); err == nil {
		q.Yesterday = prev.Price
		q.HasYesterday = true
		q.Delta = math.Round((price-prev.Price)*1000) / 1000
	}
	return q, nil
}

func (o *Oracle) remember(day string, price float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cache[day] = price
	// One day of history is enough for Quote.
	for d := range o.cache {
		if d < Day(o.now().AddDate(0, 0, -1)) {
			delete(o.cache, d)
		}
	}
}
