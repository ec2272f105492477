package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ── Dead letters ──────────────────────────────────────────────────────────────
// Jobs that cannot be processed are parked on dlq:{queue}, newest first, and
// kept for inspection or replay. Each list is capped at maxDeadLetters.

const (
	DLQPrefix      = "dlq:"
	maxDeadLetters = 1000
)

var deadLettersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fairtrace_worker_dead_letters_total",
	Help: "Jobs moved to a dead letter queue.",
}, []string{"queue", "job_type"})

// DeadLetter is one parked job.
type DeadLetter struct {
	Queue    string          `json:"queue"`
	JobType  string          `json:"job_type"`
	Payload  json.RawMessage `json:"payload"`
	Reason   string          `json:"reason"`
	Attempts int             `json:"attempts"`
	ParkedAt time.Time       `json:"parked_at"`
}

// SendToDLQ parks a job. Failures are logged; the job is lost only if redis
// itself is unavailable.
func SendToDLQ(ctx context.Context, rdb *redis.Client, dl DeadLetter) {
	if dl.ParkedAt.IsZero() {
		dl.ParkedAt = time.Now().UTC()
	}
	data, err := json.Marshal(dl)
	if err != nil {
		log.Error().Err(err).Str("queue", dl.Queue).Msg("dlq: marshal failed")
		return
	}

	key := DLQPrefix + dl.Queue
	pipe := rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, maxDeadLetters-1)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Str("dlq_key", key).Msg("dlq: push failed")
		return
	}
	deadLettersTotal.WithLabelValues(dl.Queue, dl.JobType).Inc()

	log.Warn().
		Str("queue", dl.Queue).
		Str("job_type", dl.JobType).
		Str("reason", dl.Reason).
		Int("attempts", dl.Attempts).
		Msg("dlq: job parked")
}

// DLQLength returns how many jobs are parked for queue.
func DLQLength(ctx context.Context, rdb *redis.Client, queue string) (int64, error) {
	return rdb.LLen(ctx, DLQPrefix+queue).Result()
}

// PeekDLQ returns up to limit parked jobs, newest first, without removing them.
func PeekDLQ(ctx context.Context, rdb *redis.Client, queue string, limit int64) ([]DeadLetter, error) {
	raw, err := rdb.LRange(ctx, DLQPrefix+queue, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]DeadLetter, 0, len(raw))
	for _, r := range raw {
		var dl DeadLetter
		if err := json.Unmarshal([]byte(r), &dl); err != nil {
			return nil, fmt.Errorf("dlq %s: %w", queue, err)
		}
		out = append(out, dl)
	}
	return out, nil
}

// ReplayDLQ moves up to limit of the oldest parked jobs back onto their queue
// with a fresh attempt budget, and returns how many were moved.
func ReplayDLQ(ctx context.Context, rdb *redis.Client, queue string, limit int) (int, error) {
	key := DLQPrefix + queue
	moved := 0
	for moved < limit {
		raw, err := rdb.RPop(ctx, key).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return moved, err
		}
		var dl DeadLetter
		if err := json.Unmarshal([]byte(raw), &dl); err != nil {
			log.Error().Err(err).Str("dlq_key", key).Msg("dlq: dropping unreadable entry")
			continue
		}
		if err := push(ctx, rdb, queue, Job{Type: dl.JobType, Payload: dl.Payload}); err != nil {
			return moved, err
		}
		moved++
	}
	if moved > 0 {
		log.Info().Str("queue", queue).Int("jobs", moved).Msg("dlq: replayed")
	}
	return moved, nil
}
