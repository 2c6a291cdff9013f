package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/config"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

// QuotaEvent announces a user's recomputed quota standing for one
// resource kind. Downstream consumers (notifiers, schedulers) subscribe
// to react to warning/critical crossings.
type QuotaEvent struct {
	UserID string             `json:"user_id"`
	Kind   types.ResourceKind `json:"kind"`
	Usage  int64              `json:"usage"`
	Health types.QuotaHealth  `json:"health"`
}

type QuotaBus interface {
	Publish(ctx context.Context, event QuotaEvent) error
	StartForwarder(ctx context.Context, onEvent func(e QuotaEvent)) error
	Close() error
}

type quotaBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// NewQuotaBus connects to the configured Redis instance. Returns
// (nil, nil) when no Redis address is configured; the bus is optional
// and callers treat a nil bus as a no-op.
func NewQuotaBus(cfg *config.Config, log *logger.Logger) (QuotaBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, nil
	}
	ch := strings.TrimSpace(cfg.RedisChannel)
	if ch == "" {
		ch = "quota-events"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &quotaBus{
		log:     log.With("service", "RedisQuotaBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *quotaBus) Publish(ctx context.Context, event QuotaEvent) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis quota bus not initialized")
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *quotaBus) StartForwarder(ctx context.Context, onEvent func(e QuotaEvent)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis quota bus not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var event QuotaEvent
				if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
					b.log.Warn("bad redis quota payload", "error", err)
					continue
				}
				onEvent(event)
			}
		}
	}()

	return nil
}

func (b *quotaBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
