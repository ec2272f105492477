package trace

import (
	"fairtrace/internal/model"

	"github.com/google/uuid"
)

// Tiers returns, for every transaction, the tier of the node that holds its
// result batches: 0 for the transaction that produced the traced batch, and
// one more for every external hop towards the origin. A transaction feeding
// several downstream transactions takes the largest tier among them.
func Tiers(txns []model.Transaction) map[uuid.UUID]int {
	byID := make(map[uuid.UUID]*model.Transaction, len(txns))
	producer := make(map[uuid.UUID]uuid.UUID) // batch -> producing txn
	for i := range txns {
		t := &txns[i]
		byID[t.ID] = t
		for _, b := range t.ResultBatches {
			producer[b.ID] = t.ID
		}
	}
	for i := range txns {
		for _, sb := range txns[i].SourceBatches {
			if sb.Batch != nil && sb.Batch.SourceTransactionID != nil {
				if _, ok := producer[sb.BatchID]; !ok {
					producer[sb.BatchID] = *sb.Batch.SourceTransactionID
				}
			}
		}
	}

	parents := make(map[uuid.UUID][]uuid.UUID, len(txns))
	pending := make(map[uuid.UUID]int, len(txns)) // children not yet tiered
	for i := range txns {
		child := txns[i].ID
		seen := make(map[uuid.UUID]struct{})
		for _, sb := range txns[i].SourceBatches {
			p, ok := producer[sb.BatchID]
			if !ok || p == child {
				continue
			}
			if _, in := byID[p]; !in {
				continue
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			parents[child] = append(parents[child], p)
			pending[p]++
		}
	}

	tiers := make(map[uuid.UUID]int, len(txns))
	var queue []uuid.UUID
	for i := range txns {
		if pending[txns[i].ID] == 0 {
			queue = append(queue, txns[i].ID)
			tiers[txns[i].ID] = 0
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		upstream := tiers[id]
		if byID[id].IsExternal() {
			upstream++
		}
		for _, p := range parents[id] {
			if upstream > tiers[p] {
				tiers[p] = upstream
			}
			if pending[p]--; pending[p] == 0 {
				queue = append(queue, p)
			}
		}
	}
	// inconsistent edge data can leave transactions unreached
	for i := range txns {
		if _, ok := tiers[txns[i].ID]; !ok {
			tiers[txns[i].ID] = 0
		}
	}
	return tiers
}
