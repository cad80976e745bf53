package generation

import (
	"context"
	"fmt"
	"time"

	"novel-vote-server/internal/models"

	"go.uber.org/zap"
)

// RecoveryResult - итог одного прохода восстановления.
type RecoveryResult struct {
	Redispatched int
	Failed       int
}

// RecoverStale переотправляет зависшие pending-записи и проваливает зависшие processing-записи.
// Переотправка безопасна: исполнитель все равно должен выиграть переход pending -> processing.
func (o *Orchestrator) RecoverStale(ctx context.Context, staleAfter time.Duration, limit int) (RecoveryResult, error) {
	var res RecoveryResult
	before := o.now().UTC().Add(-staleAfter)

	pending, err := o.generations.ListStale(ctx, o.tx.DB(), models.GenerationStatusPending, before, limit)
	if err != nil {
		return res, err
	}
	for _, record := range pending {
		o.logger.Warn("Re-dispatching stale pending generation",
			zap.String("generationID", record.ID.String()),
			zap.Time("createdAt", record.CreatedAt),
		)
		o.Dispatch(ctx, record)
		res.Redispatched++
	}

	processing, err := o.generations.ListStale(ctx, o.tx.DB(), models.GenerationStatusProcessing, before, limit)
	if err != nil {
		return res, err
	}
	for _, record := range processing {
		details := fmt.Sprintf("stale: processing for longer than %s", staleAfter)
		if err := o.fail(ctx, record, models.GenerationStatusProcessing, "stale", details, models.UsageInfo{}); err != nil {
			continue
		}
		res.Failed++
	}
	return res, nil
}
