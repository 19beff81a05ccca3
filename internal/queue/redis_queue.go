package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const promoteBatch = 100

// promoteScript moves due members from the schedule set to the ready list.
// ZREM guards against two pollers moving the same member.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
local moved = 0
for _, member in ipairs(due) do
  if redis.call('ZREM', KEYS[1], member) == 1 then
    redis.call('LPUSH', KEYS[2], member)
    moved = moved + 1
  end
end
return moved
`)

// RedisQueue is a delayed task queue with at-least-once hand-off.
//
// Layout under the namespace:
//
//	<ns>:schedule   sorted set, score = run-at in unix ms
//	<ns>:queue      ready list, consumed from the right
//	<ns>:processing in-flight list, entries removed on Ack
type RedisQueue struct {
	rdb           redis.UniversalClient
	scheduleKey   string
	readyKey      string
	processingKey string
}

// Delivery is a dequeued task awaiting Ack.
type Delivery struct {
	Task Task
	raw  string
}

func NewRedisQueue(rdb redis.UniversalClient, namespace string) *RedisQueue {
	return &RedisQueue{
		rdb:           rdb,
		scheduleKey:   namespace + ":schedule",
		readyKey:      namespace + ":queue",
		processingKey: namespace + ":processing",
	}
}

// Enqueue makes the task ready for the next free worker.
func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	raw, err := encodeTask(t)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", t.Kind, err)
	}
	if err := q.rdb.LPush(ctx, q.readyKey, raw).Err(); err != nil {
		return fmt.Errorf("enqueue task %s: %w", t.Kind, err)
	}
	return nil
}

// ScheduleIn makes the task ready after delay.
func (q *RedisQueue) ScheduleIn(ctx context.Context, t Task, delay time.Duration) error {
	raw, err := encodeTask(t)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", t.Kind, err)
	}
	runAt := time.Now().Add(delay).UnixMilli()
	if err := q.rdb.ZAdd(ctx, q.scheduleKey, redis.Z{Score: float64(runAt), Member: raw}).Err(); err != nil {
		return fmt.Errorf("schedule task %s: %w", t.Kind, err)
	}
	return nil
}

// IsScheduled reports whether a task of the given kind is queued anywhere:
// waiting in the schedule set, ready, or in flight.
func (q *RedisQueue) IsScheduled(ctx context.Context, kind string) (bool, error) {
	found, err := q.scheduleHasKind(ctx, kind)
	if err != nil || found {
		return found, err
	}
	for _, key := range []string{q.readyKey, q.processingKey} {
		found, err := q.listHasKind(ctx, key, kind)
		if err != nil || found {
			return found, err
		}
	}
	return false, nil
}

func (q *RedisQueue) scheduleHasKind(ctx context.Context, kind string) (bool, error) {
	var cursor uint64
	for {
		members, next, err := q.rdb.ZScan(ctx, q.scheduleKey, cursor, "", promoteBatch).Result()
		if err != nil {
			return false, fmt.Errorf("scan schedule: %w", err)
		}
		// ZSCAN replies alternate member, score.
		for i := 0; i < len(members); i += 2 {
			if hasKind(members[i], kind) {
				return true, nil
			}
		}
		if next == 0 {
			return false, nil
		}
		cursor = next
	}
}

func (q *RedisQueue) listHasKind(ctx context.Context, key, kind string) (bool, error) {
	for start := int64(0); ; start += promoteBatch {
		entries, err := q.rdb.LRange(ctx, key, start, start+promoteBatch-1).Result()
		if err != nil {
			return false, fmt.Errorf("scan %s: %w", key, err)
		}
		for _, raw := range entries {
			if hasKind(raw, kind) {
				return true, nil
			}
		}
		if len(entries) < promoteBatch {
			return false, nil
		}
	}
}

func hasKind(raw, kind string) bool {
	t, err := decodeTask(raw)
	return err == nil && t.Kind == kind
}

// Promote moves every task due at now to the ready list and returns how many moved.
func (q *RedisQueue) Promote(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for {
		moved, err := promoteScript.Run(ctx, q.rdb,
			[]string{q.scheduleKey, q.readyKey},
			now.UnixMilli(), promoteBatch,
		).Int()
		if err != nil {
			return total, fmt.Errorf("promote scheduled tasks: %w", err)
		}
		total += moved
		if moved < promoteBatch {
			return total, nil
		}
	}
}

// Dequeue waits up to timeout for a ready task and moves it to the in-flight list.
// It returns nil when nothing became ready.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	raw, err := q.rdb.BRPopLPush(ctx, q.readyKey, q.processingKey, timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}

	t, err := decodeTask(raw)
	if err != nil {
		// Undecodable entries would be recovered forever; drop them.
		_ = q.rdb.LRem(ctx, q.processingKey, 1, raw).Err()
		return nil, fmt.Errorf("decode task %q: %w", raw, err)
	}
	return &Delivery{Task: t, raw: raw}, nil
}

// Ack removes a finished delivery from the in-flight list.
func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if d == nil {
		return nil
	}
	if err := q.rdb.LRem(ctx, q.processingKey, 1, d.raw).Err(); err != nil {
		return fmt.Errorf("ack task %s: %w", d.Task.ID, err)
	}
	return nil
}

// Recover returns in-flight tasks left behind by a previous process to the ready list.
// Call it once before any worker starts.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.rdb.RPopLPush(ctx, q.processingKey, q.readyKey).Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("recover in-flight tasks: %w", err)
		}
		n++
	}
}

// Stats is a point-in-time view of the queue sizes.
type Stats struct {
	Scheduled  int64 `json:"scheduled"`
	Ready      int64 `json:"ready"`
	Processing int64 `json:"processing"`
}

func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.rdb.Pipeline()
	scheduled := pipe.ZCard(ctx, q.scheduleKey)
	ready := pipe.LLen(ctx, q.readyKey)
	processing := pipe.LLen(ctx, q.processingKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{
		Scheduled:  scheduled.Val(),
		Ready:      ready.Val(),
		Processing: processing.Val(),
	}, nil
}

// Ping checks connectivity.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}
