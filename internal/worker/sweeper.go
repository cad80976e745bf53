package worker

import (
	"context"
	"time"

	"novel-vote-server/internal/generation"

	"go.uber.org/zap"
)

const defaultSweepBatch = 100

// RoundCloser закрывает раунды голосования с истекшим дедлайном.
type RoundCloser interface {
	CloseExpiredRounds(ctx context.Context, limit int) (claimed, extended int, err error)
}

// StaleRecoverer восстанавливает зависшие записи генерации.
type StaleRecoverer interface {
	RecoverStale(ctx context.Context, staleAfter time.Duration, limit int) (generation.RecoveryResult, error)
}

// TaskCleaner удаляет давно завершенные внутрипроцессные задачи.
type TaskCleaner interface {
	CleanupTasks(age time.Duration) int
}

// SweeperConfig - параметры периодического обхода.
type SweeperConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

// Sweeper периодически закрывает истекшие раунды и восстанавливает зависшие генерации.
type Sweeper struct {
	rounds  RoundCloser
	stale   StaleRecoverer
	cleaner TaskCleaner
	cfg     SweeperConfig
	logger  *zap.Logger
}

// NewSweeper создает обходчик. cleaner может быть nil.
func NewSweeper(rounds RoundCloser, stale StaleRecoverer, cleaner TaskCleaner, cfg SweeperConfig, logger *zap.Logger) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultSweepBatch
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Sweeper{
		rounds:  rounds,
		stale:   stale,
		cleaner: cleaner,
		cfg:     cfg,
		logger:  logger.Named("Sweeper"),
	}
}

// Run выполняет обходы до отмены ctx. Первый обход выполняется сразу.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("Sweeper started",
		zap.Duration("interval", s.cfg.Interval), zap.Duration("staleAfter", s.cfg.StaleAfter))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep выполняет один обход. Ошибки логируются: следующий обход повторит работу.
func (s *Sweeper) Sweep(ctx context.Context) {
	if s.rounds != nil {
		claimed, extended, err := s.rounds.CloseExpiredRounds(ctx, s.cfg.BatchSize)
		if err != nil {
			s.logger.Error("Failed to close expired rounds", zap.Error(err))
		} else if claimed > 0 || extended > 0 {
			s.logger.Info("Expired rounds processed", zap.Int("claimed", claimed), zap.Int("extended", extended))
		}
	}

	if s.stale != nil && s.cfg.StaleAfter > 0 {
		res, err := s.stale.RecoverStale(ctx, s.cfg.StaleAfter, s.cfg.BatchSize)
		if err != nil {
			s.logger.Error("Failed to recover stale generations", zap.Error(err))
		} else if res.Redispatched > 0 || res.Failed > 0 {
			s.logger.Info("Stale generations recovered",
				zap.Int("redispatched", res.Redispatched), zap.Int("failed", res.Failed))
		}
	}

	if s.cleaner != nil {
		if removed := s.cleaner.CleanupTasks(time.Hour); removed > 0 {
			s.logger.Debug("Finished in-process tasks cleaned up", zap.Int("removed", removed))
		}
	}
}
