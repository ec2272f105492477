package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ReviewJobPayload describes a data-quality problem that needs a human:
// a claim inheritance inconsistency or a broken transaction chain.
type ReviewJobPayload struct {
	Kind     string   `json:"kind"` // claim_inconsistency | data_integrity
	Subject  string   `json:"subject"`
	Details  []string `json:"details"`
	EntityID string   `json:"entity_id,omitempty"`
}

// ReviewMailer is satisfied by *infra.Mailer.
type ReviewMailer interface {
	Configured() bool
	SendReview(to []string, subject string, details []string) error
}

// ReviewWorker mails review notices to the configured address.
type ReviewWorker struct {
	mailer ReviewMailer
	to     string
}

func NewReviewWorker(mailer ReviewMailer, to string) *ReviewWorker {
	return &ReviewWorker{mailer: mailer, to: to}
}

func (w *ReviewWorker) Process(_ context.Context, raw json.RawMessage) error {
	var payload ReviewJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("review_worker: invalid payload")
		return nil
	}
	if w.to == "" || w.mailer == nil || !w.mailer.Configured() {
		log.Warn().Str("kind", payload.Kind).Str("subject", payload.Subject).Msg("review_worker: no review address, notice logged only")
		return nil
	}

	details := payload.Details
	if payload.EntityID != "" {
		details = append([]string{fmt.Sprintf("%s: %s", payload.Kind, payload.EntityID)}, details...)
	}
	if err := w.mailer.SendReview([]string{w.to}, payload.Subject, details); err != nil {
		return err
	}
	log.Info().Str("kind", payload.Kind).Str("to", w.to).Msg("review_worker: review notice sent")
	return nil
}
