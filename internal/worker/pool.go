package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueBlockchain = "jobs:blockchain"
	QueueReview     = "jobs:review"

	JobBlockchain = "blockchain"
	JobReview     = "review"

	// MaxJobAttempts bounds how often a failing job is requeued before it is
	// moved to the dead letter queue.
	MaxJobAttempts = 3
)

// Job is the generic envelope for all async tasks.
type Job struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts,omitempty"`
}

// Handler processes the payload of one job type. A returned error requeues
// the job until MaxJobAttempts is reached.
type Handler interface {
	Process(ctx context.Context, raw json.RawMessage) error
}

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// EnqueueBlockchain pushes a provenance log job.
func (d *Dispatcher) EnqueueBlockchain(ctx context.Context, payload BlockchainJobPayload) error {
	return d.enqueue(ctx, QueueBlockchain, JobBlockchain, payload)
}

// EnqueueReview pushes a data-quality review notice.
func (d *Dispatcher) EnqueueReview(ctx context.Context, payload ReviewJobPayload) error {
	return d.enqueue(ctx, QueueReview, JobReview, payload)
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return push(ctx, d.rdb, queue, Job{Type: jobType, Payload: data})
}

func push(ctx context.Context, rdb *redis.Client, queue string, job Job) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return rdb.LPush(ctx, queue, encoded).Err()
}

// Pool consumes the job queues and routes every job to its handler by type.
type Pool struct {
	rdb      *redis.Client
	handlers map[string]Handler
	queues   []string
	poll     time.Duration
}

// NewPool registers handlers keyed by Job.Type.
func NewPool(rdb *redis.Client, handlers map[string]Handler) *Pool {
	return &Pool{
		rdb:      rdb,
		handlers: handlers,
		queues:   []string{QueueBlockchain, QueueReview},
		poll:     5 * time.Second,
	}
}

// Start launches numWorkers goroutines consuming both queues.
// Each goroutine blocks on BRPOP, so idle workers cost nothing.
func (p *Pool) Start(ctx context.Context, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		go p.run(ctx, i)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func (p *Pool) run(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop; waits up to poll then loops to check ctx
			result, err := p.rdb.BRPop(ctx, p.poll, p.queues...).Result()
			if err != nil {
				continue // timeout or context cancelled
			}
			if len(result) < 2 {
				continue
			}
			p.processJob(ctx, result[0], result[1])
		}
	}
}

func (p *Pool) processJob(ctx context.Context, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		SendToDLQ(ctx, p.rdb, DeadLetter{Queue: queue, JobType: "unknown", Payload: json.RawMessage(fmt.Sprintf("%q", raw)), Reason: "malformed envelope"})
		return
	}

	h, ok := p.handlers[job.Type]
	if !ok {
		log.Error().Str("type", job.Type).Str("queue", queue).Msg("no handler for job type")
		SendToDLQ(ctx, p.rdb, DeadLetter{Queue: queue, JobType: job.Type, Payload: job.Payload, Reason: "no handler registered", Attempts: job.Attempts})
		return
	}

	job.Attempts++
	err := h.Process(ctx, job.Payload)
	if err == nil {
		return
	}
	if job.Attempts >= MaxJobAttempts {
		SendToDLQ(ctx, p.rdb, DeadLetter{Queue: queue, JobType: job.Type, Payload: job.Payload, Reason: err.Error(), Attempts: job.Attempts})
		return
	}
	log.Warn().Err(err).Str("type", job.Type).Int("attempt", job.Attempts).Msg("job failed, requeueing")
	if perr := push(ctx, p.rdb, queue, job); perr != nil {
		log.Error().Err(perr).Str("queue", queue).Msg("failed to requeue job")
	}
}
