package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/fieldwise/farmhand/internal/lookupcache"
)

type retentionStore interface {
	PurgeConversationsIdleSince(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor periodically sweeps stale lookup-cache entries and, when a
// retention period is configured, purges idle conversations. A Redis lock
// keeps replicas from running the same task twice.
type Janitor struct {
	Cache     lookupcache.Store
	Store     retentionStore
	Rdb       *redis.Client
	Schedule  string
	Window    time.Duration // entries older than twice this are swept
	Retention time.Duration // 0 disables the conversation purge
	Stop      chan struct{}

	logger  *log.Logger
	lastRun *time.Time
}

func NewJanitor(cache lookupcache.Store, st retentionStore, rdb *redis.Client, schedule string, window, retention time.Duration) *Janitor {
	if schedule == "" {
		schedule = "@hourly"
	}
	return &Janitor{
		Cache:     cache,
		Store:     st,
		Rdb:       rdb,
		Schedule:  schedule,
		Window:    window,
		Retention: retention,
		Stop:      make(chan struct{}),
		logger:    log.New(log.Writer(), "[JANITOR] ", log.LstdFlags),
	}
}

func (j *Janitor) Start() {
	ticker := time.NewTicker(time.Minute)
	go func() {
		for {
			select {
			case <-j.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				if !isDue(j.Schedule, j.lastRun) {
					continue
				}
				now := time.Now()
				j.lastRun = &now
				j.tick()
			}
		}
	}()
}

func (j *Janitor) tick() {
	ctx := context.Background()

	j.withLock(ctx, "cache_sweep", func() {
		cutoff := time.Now().Add(-2 * j.Window)
		n, err := j.Cache.Sweep(ctx, cutoff)
		if err != nil {
			j.logger.Printf("cache sweep: %v", err)
			return
		}
		if n > 0 {
			j.logger.Printf("swept %d stale lookup entries", n)
		}
	})

	if j.Retention > 0 && j.Store != nil {
		j.withLock(ctx, "retention", func() {
			cutoff := time.Now().Add(-j.Retention)
			n, err := j.Store.PurgeConversationsIdleSince(ctx, cutoff)
			if err != nil {
				j.logger.Printf("retention purge: %v", err)
				return
			}
			if n > 0 {
				j.logger.Printf("purged %d idle conversations", n)
			}
		})
	}
}

// withLock runs fn under a best-effort distributed lock. Without Redis the
// janitor assumes a single replica and runs fn directly.
func (j *Janitor) withLock(ctx context.Context, task string, fn func()) {
	if j.Rdb != nil {
		key := "janitor:lock:" + task
		ok, err := j.Rdb.SetNX(ctx, key, "1", 2*time.Minute).Result()
		if err != nil {
			j.logger.Printf("lock %s: %v", task, err)
			return
		}
		if !ok {
			return
		}
		defer j.Rdb.Del(ctx, key)
	}
	fn()
}

// isDue determines if a schedule should fire now given the last run time.
// Supports "@daily", "@hourly", and standard 5-field cron expressions.
func isDue(schedule string, last *time.Time) bool {
	now := time.Now()
	switch schedule {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(schedule)
		if err != nil {
			return false
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.IsZero() && now.After(next)
	}
}
