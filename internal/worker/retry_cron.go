package worker

// Background goroutine that periodically re-submits transactions whose
// blockchain log failed and whose next attempt is due. Skips ticks while the
// circuit breaker is open so a downed middleware is not hammered.

import (
	"context"
	"time"

	"fairtrace/internal/infra"
	"fairtrace/internal/repository"

	"github.com/rs/zerolog/log"
)

const (
	retryTickInterval = 30 * time.Second
	retryBatchSize    = 10
)

// RetryCronConfig holds all dependencies for the retry goroutine.
type RetryCronConfig struct {
	TxnRepo repository.TransactionRepository
	Worker  *BlockchainWorker
	CB      *infra.CircuitBreaker
}

// StartRetryCron ticks every 30s until ctx is cancelled.
func StartRetryCron(ctx context.Context, cfg RetryCronConfig) {
	go func() {
		ticker := time.NewTicker(retryTickInterval)
		defer ticker.Stop()

		log.Info().Msg("retry_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("retry_cron: shutting down")
				return
			case <-ticker.C:
				processRetries(ctx, cfg, time.Now())
			}
		}
	}()
}

func processRetries(ctx context.Context, cfg RetryCronConfig, now time.Time) int {
	if cfg.CB.State() == infra.CBOpen {
		log.Debug().Msg("retry_cron: circuit breaker is open, skipping tick")
		return 0
	}

	txns, err := cfg.TxnRepo.ListPendingBlockchain(ctx, now, retryBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("retry_cron: failed to query pending retries")
		return 0
	}
	if len(txns) == 0 {
		return 0
	}

	log.Info().Int("count", len(txns)).Msg("retry_cron: processing pending transactions")

	done := 0
	for i := range txns {
		// the breaker may have tripped mid-batch
		if cfg.CB.State() == infra.CBOpen {
			log.Debug().Msg("retry_cron: circuit breaker opened mid-batch, stopping")
			break
		}
		// the list query does not preload batches
		txn, err := cfg.TxnRepo.FindByID(ctx, txns[i].ID)
		if err != nil {
			log.Error().Err(err).Str("transaction_id", txns[i].ID.String()).Msg("retry_cron: reload failed")
			continue
		}
		cfg.Worker.LogTransaction(ctx, txn)
		done++
	}
	return done
}
