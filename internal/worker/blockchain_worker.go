package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fairtrace/internal/infra"
	"fairtrace/internal/model"
	"fairtrace/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// MaxBlockchainRetries is the number of failed submissions after which a
// transaction is marked failed and parked in the DLQ.
const MaxBlockchainRetries = 5

// BlockchainJobPayload identifies the record to log. Transactions carry their
// status in the database; claim events are fire-and-forget.
type BlockchainJobPayload struct {
	Kind   string `json:"kind"` // transaction | claim
	ID     string `json:"id"`
	NodeID string `json:"node_id,omitempty"`
	Status string `json:"status,omitempty"`
}

// ProvenanceLogger is satisfied by *infra.BlockchainClient.
type ProvenanceLogger interface {
	Log(ctx context.Context, ev infra.ProvenanceEvent) (*infra.LogReceipt, error)
}

// BlockchainWorker submits transaction and claim events to the middleware
// through the circuit breaker.
type BlockchainWorker struct {
	client  ProvenanceLogger
	cb      *infra.CircuitBreaker
	txnRepo repository.TransactionRepository
	rdb     *redis.Client
	now     func() time.Time
}

func NewBlockchainWorker(client ProvenanceLogger, cb *infra.CircuitBreaker, txnRepo repository.TransactionRepository, rdb *redis.Client) *BlockchainWorker {
	return &BlockchainWorker{client: client, cb: cb, txnRepo: txnRepo, rdb: rdb, now: time.Now}
}

// Process handles one queued job. Transaction failures are scheduled for
// the retry cron instead of being requeued, so they never return an error.
func (w *BlockchainWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload BlockchainJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("blockchain_worker: invalid payload")
		return nil
	}

	switch payload.Kind {
	case "transaction":
		id, err := uuid.Parse(payload.ID)
		if err != nil {
			log.Error().Str("id", payload.ID).Msg("blockchain_worker: invalid transaction id")
			return nil
		}
		txn, err := w.txnRepo.FindByID(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn().Str("id", payload.ID).Msg("blockchain_worker: transaction vanished")
			return nil
		}
		if err != nil {
			return err
		}
		w.LogTransaction(ctx, txn)
		return nil
	case "claim":
		return w.cb.Execute(func() error {
			_, err := w.client.Log(ctx, infra.ProvenanceEvent{
				Kind:      "claim",
				ID:        payload.ID,
				NodeID:    payload.NodeID,
				Status:    payload.Status,
				Timestamp: w.now().UTC(),
			})
			return err
		})
	default:
		log.Error().Str("kind", payload.Kind).Msg("blockchain_worker: unknown event kind")
		return nil
	}
}

// LogTransaction submits txn once and records the outcome: the ledger
// address on success, the next attempt on failure, failed status once
// MaxBlockchainRetries is reached.
func (w *BlockchainWorker) LogTransaction(ctx context.Context, txn *model.Transaction) {
	if txn.BlockchainStatus != model.BlockchainPending {
		return
	}

	var receipt *infra.LogReceipt
	err := w.cb.Execute(func() error {
		r, err := w.client.Log(ctx, transactionEvent(txn))
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})

	if err == nil {
		addr := receipt.Address
		if uerr := w.txnRepo.UpdateBlockchain(ctx, txn.ID, repository.BlockchainUpdate{
			Status:  model.BlockchainLogged,
			Address: &addr,
			Retries: txn.BlockchainRetries,
		}); uerr != nil {
			log.Error().Err(uerr).Str("transaction_id", txn.ID.String()).Msg("blockchain_worker: failed to store address")
			return
		}
		log.Info().Str("transaction_id", txn.ID.String()).Str("address", addr).Msg("blockchain_worker: transaction logged")
		return
	}

	retries := txn.BlockchainRetries + 1
	update := repository.BlockchainUpdate{Status: model.BlockchainPending, Retries: retries}
	if retries >= MaxBlockchainRetries {
		update.Status = model.BlockchainFailed
		log.Error().
			Str("transaction_id", txn.ID.String()).
			Int("retries", retries).
			Msg("blockchain_worker: max retries exceeded, moving to failed/DLQ")
		if w.rdb != nil {
			payload, _ := json.Marshal(BlockchainJobPayload{Kind: "transaction", ID: txn.ID.String()})
			SendToDLQ(ctx, w.rdb, DeadLetter{
				Queue:    QueueBlockchain,
				JobType:  JobBlockchain,
				Payload:  payload,
				Reason:   fmt.Sprintf("max retries (%d) exceeded: %s", MaxBlockchainRetries, err),
				Attempts: retries,
				ParkedAt: w.now().UTC(),
			})
		}
	} else {
		next := w.now().Add(computeRetryBackoff(retries))
		update.NextAttemptAt = &next
		log.Warn().
			Err(err).
			Str("transaction_id", txn.ID.String()).
			Int("retry_count", retries).
			Time("next_attempt_at", next).
			Msg("blockchain_worker: submission failed, scheduled next attempt")
	}
	if uerr := w.txnRepo.UpdateBlockchain(ctx, txn.ID, update); uerr != nil {
		log.Error().Err(uerr).Str("transaction_id", txn.ID.String()).Msg("blockchain_worker: failed to record attempt")
	}
}

func transactionEvent(txn *model.Transaction) infra.ProvenanceEvent {
	ev := infra.ProvenanceEvent{
		Kind:      "transaction",
		ID:        txn.ID.String(),
		Quantity:  txn.DestinationQuantity.String(),
		Timestamp: txn.Date.UTC(),
	}
	if txn.IsExternal() {
		if txn.SourceNodeID != nil {
			ev.NodeID = txn.SourceNodeID.String()
		}
		if txn.DestinationNodeID != nil {
			ev.PeerID = txn.DestinationNodeID.String()
		}
	} else if txn.NodeID != nil {
		ev.NodeID = txn.NodeID.String()
	}
	for _, sb := range txn.SourceBatches {
		ev.Inputs = append(ev.Inputs, sb.BatchID.String())
	}
	for _, rb := range txn.ResultBatches {
		ev.Outputs = append(ev.Outputs, rb.ID.String())
	}
	return ev
}

// computeRetryBackoff doubles from one minute and caps at one hour.
func computeRetryBackoff(retries int) time.Duration {
	if retries < 1 {
		retries = 1
	}
	d := time.Minute << uint(retries-1)
	if d > time.Hour || d <= 0 {
		return time.Hour
	}
	return d
}
