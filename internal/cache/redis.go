package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Interval is a cached blocked time range on a resource calendar.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CalendarCache is a read-through cache of per-day blocked intervals plus a
// distributed lock per resource calendar. The lock is the cross-instance
// guard taken before the conflict-check-then-write transaction; the cache is
// advisory only and is invalidated transactionally alongside calendar writes.
type CalendarCache struct {
	client      *redis.Client
	calendarTTL time.Duration
	lockTTL     time.Duration
}

func NewCalendarCache(addr, password string, db int, calendarTTL, lockTTL time.Duration) *CalendarCache {
	return &CalendarCache{
		client:      redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		calendarTTL: calendarTTL,
		lockTTL:     lockTTL,
	}
}

// GetBlockedIntervals returns the cached blocked intervals for a resource day,
// or ok=false on a cache miss.
func (c *CalendarCache) GetBlockedIntervals(ctx context.Context, resourceType, resourceID string, day time.Time) ([]Interval, bool, error) {
	data, err := c.client.Get(ctx, calendarKey(resourceType, resourceID, day)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}

	var intervals []Interval
	if err := json.Unmarshal(data, &intervals); err != nil {
		return nil, false, err
	}
	return intervals, true, nil
}

func (c *CalendarCache) SetBlockedIntervals(ctx context.Context, resourceType, resourceID string, day time.Time, intervals []Interval) error {
	payload, err := json.Marshal(intervals)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, calendarKey(resourceType, resourceID, day), payload, c.calendarTTL).Err()
}

// InvalidateCalendar drops cached days touched by a calendar write. A booking
// whose block window spans midnight invalidates every covered day.
func (c *CalendarCache) InvalidateCalendar(ctx context.Context, resourceType, resourceID string, from, to time.Time) error {
	keys := invalidationKeys(resourceType, resourceID, from, to)
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// invalidationKeys lists the calendar keys a write in [from, to] may have
// populated. Cached days are keyed by the location-local open instant
// truncated in UTC, which for zones east of UTC lands on the UTC day before
// the write, so the range starts one day early.
func invalidationKeys(resourceType, resourceID string, from, to time.Time) []string {
	var keys []string
	start := from.UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	for day := start; !day.After(to.UTC()); day = day.AddDate(0, 0, 1) {
		keys = append(keys, calendarKey(resourceType, resourceID, day))
	}
	return keys
}

// AcquireCalendarLock takes the per-resource calendar lock. Returns false when
// another writer holds it. The TTL guards against a crashed holder.
func (c *CalendarCache) AcquireCalendarLock(ctx context.Context, resourceType, resourceID string) (bool, error) {
	return c.client.SetNX(ctx, lockKey(resourceType, resourceID), "locked", c.lockTTL).Result()
}

func (c *CalendarCache) ReleaseCalendarLock(ctx context.Context, resourceType, resourceID string) error {
	return c.client.Del(ctx, lockKey(resourceType, resourceID)).Err()
}

func calendarKey(resourceType, resourceID string, day time.Time) string {
	return fmt.Sprintf("cache:calendar:%s:%s:%s", resourceType, resourceID, day.Format("2006-01-02"))
}

func lockKey(resourceType, resourceID string) string {
	return fmt.Sprintf("lock:calendar:%s:%s", resourceType, resourceID)
}
