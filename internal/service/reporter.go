package service

import (
	"context"
	"errors"
	"fmt"

	"fairtrace/internal/trace"
	"fairtrace/internal/worker"

	"github.com/rs/zerolog/log"
)

// Reporter receives data-quality problems that must not fail the request:
// broken transaction chains and inconsistent inherited claims.
type Reporter interface {
	Report(ctx context.Context, err error)
}

// queueReporter logs every problem and queues it for human review when a
// dispatcher is available.
type queueReporter struct {
	dispatcher *worker.Dispatcher
}

func NewReporter(dispatcher *worker.Dispatcher) Reporter {
	return &queueReporter{dispatcher: dispatcher}
}

func (r *queueReporter) Report(ctx context.Context, err error) {
	if err == nil {
		return
	}
	payload := worker.ReviewJobPayload{Details: []string{err.Error()}}

	var integrity *trace.DataIntegrityWarning
	var inconsistency *trace.ClaimInconsistency
	switch {
	case errors.As(err, &integrity):
		payload.Kind = "data_integrity"
		payload.Subject = "Transaction chain needs review"
		payload.EntityID = integrity.BatchID.String()
	case errors.As(err, &inconsistency):
		payload.Kind = "claim_inconsistency"
		payload.Subject = "Inherited claim partially verified"
		payload.EntityID = inconsistency.ClaimID.String()
		for _, id := range inconsistency.Rejected {
			payload.Details = append(payload.Details, fmt.Sprintf("rejected on batch %s", id))
		}
	default:
		payload.Kind = "other"
		payload.Subject = "Data quality issue"
	}
	reportedIssuesTotal.WithLabelValues(payload.Kind).Inc()

	log.Warn().Err(err).Str("kind", payload.Kind).Msg("reporter: data quality issue")
	if r.dispatcher == nil {
		return
	}
	if qerr := r.dispatcher.EnqueueReview(ctx, payload); qerr != nil {
		log.Error().Err(qerr).Str("kind", payload.Kind).Msg("reporter: failed to enqueue review")
	}
}
