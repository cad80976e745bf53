package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/metrics"
	"novel-vote-server/internal/models"
	"novel-vote-server/internal/taskmanager"

	"go.uber.org/zap"
)

const localTransportName = "inprocess"

var errNotBound = errors.New("local dispatcher has no handler bound")

// LocalDispatcher выполняет задачи в процессе через TaskManager, когда RabbitMQ не настроен.
// Обработчики привязываются после создания: оркестратору диспетчер нужен раньше,
// чем сам оркестратор готов стать обработчиком.
type LocalDispatcher struct {
	tm          *taskmanager.TaskManager
	mu          sync.RWMutex
	runner      GenerationRunner
	illustrator Illustrator
	logger      *zap.Logger
}

// NewLocalDispatcher создает диспетчер поверх менеджера задач.
func NewLocalDispatcher(tm *taskmanager.TaskManager, logger *zap.Logger) *LocalDispatcher {
	return &LocalDispatcher{tm: tm, logger: logger.Named("LocalDispatcher")}
}

// Bind задает исполнителей задач. illustrator может быть nil.
func (d *LocalDispatcher) Bind(runner GenerationRunner, illustrator Illustrator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runner = runner
	d.illustrator = illustrator
}

// DispatchGeneration запускает генерацию в фоне.
func (d *LocalDispatcher) DispatchGeneration(ctx context.Context, payload models.GenerationTaskPayload) error {
	d.mu.RLock()
	runner := d.runner
	d.mu.RUnlock()
	if runner == nil {
		return errNotBound
	}

	taskID, err := d.tm.Submit(ctx, "generation", func(taskCtx context.Context) error {
		return runner.Run(taskCtx, payload.GenerationID)
	})
	if err != nil {
		return fmt.Errorf("submit generation task %s: %w", payload.GenerationID, err)
	}
	metrics.TasksDispatched.WithLabelValues("generation", localTransportName).Inc()
	d.logger.Debug("Generation task submitted",
		zap.String("taskID", taskID.String()), zap.String("generationID", payload.GenerationID.String()))
	return nil
}

// DispatchIllustration запускает иллюстрирование в фоне.
func (d *LocalDispatcher) DispatchIllustration(ctx context.Context, payload models.IllustrationTaskPayload) error {
	d.mu.RLock()
	illustrator := d.illustrator
	d.mu.RUnlock()
	if illustrator == nil {
		return errNotBound
	}

	_, err := d.tm.Submit(ctx, "illustration", func(taskCtx context.Context) error {
		illustrator.RequestIllustration(taskCtx, payload.ChapterID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("submit illustration task for chapter %s: %w", payload.ChapterID, err)
	}
	metrics.TasksDispatched.WithLabelValues("illustration", localTransportName).Inc()
	return nil
}

var (
	_ interfaces.GenerationDispatcher   = (*LocalDispatcher)(nil)
	_ interfaces.IllustrationDispatcher = (*LocalDispatcher)(nil)
)
