package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrTooManyTasks - достигнут лимит одновременно активных задач.
	ErrTooManyTasks = errors.New("превышено максимальное количество активных задач")
	// ErrClosed - менеджер остановлен и новые задачи не принимает.
	ErrClosed = errors.New("менеджер задач остановлен")
	// ErrTaskNotFound - задачи с таким ID нет.
	ErrTaskNotFound = errors.New("задача не найдена")
)

// Task представляет асинхронную задачу
type Task struct {
	ID        uuid.UUID
	Kind      string
	Status    TaskStatus
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
	Cancel    context.CancelFunc
}

// TaskStatus представляет статус задачи
type TaskStatus string

// Возможные статусы задач
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

func (s TaskStatus) finished() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// TaskFunc представляет функцию, выполняемую в задаче
type TaskFunc func(ctx context.Context) error

// TaskCallback вызывается при каждом изменении статуса задачи. Получает копию задачи.
type TaskCallback func(task Task)

// Config содержит конфигурацию для TaskManager
type Config struct {
	MaxTasks int
}

// TaskManager запускает задачи в горутинах, не зависящих от контекста отправителя.
type TaskManager struct {
	tasks     map[uuid.UUID]*Task
	mu        sync.RWMutex
	maxTasks  int
	callbacks map[uuid.UUID][]TaskCallback
	closed    bool
	base      context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup
	logger    *zap.Logger
}

// New создает новый экземпляр TaskManager
func New(cfg Config, logger *zap.Logger) *TaskManager {
	maxTasks := cfg.MaxTasks
	if maxTasks <= 0 {
		maxTasks = 10
	}
	base, cancel := context.WithCancel(context.Background())

	return &TaskManager{
		tasks:     make(map[uuid.UUID]*Task),
		maxTasks:  maxTasks,
		callbacks: make(map[uuid.UUID][]TaskCallback),
		base:      base,
		cancelAll: cancel,
		logger:    logger.Named("TaskManager"),
	}
}

// Submit создает и запускает новую задачу. Контекст задачи не наследует отмену ctx:
// задача переживает HTTP-запрос, который ее поставил.
func (tm *TaskManager) Submit(ctx context.Context, kind string, fn TaskFunc) (uuid.UUID, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.closed {
		return uuid.Nil, ErrClosed
	}

	activeTasks := 0
	for _, task := range tm.tasks {
		if !task.Status.finished() {
			activeTasks++
		}
	}
	if activeTasks >= tm.maxTasks {
		return uuid.Nil, ErrTooManyTasks
	}

	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(tm.base, cancel)

	now := time.Now()
	task := &Task{
		ID:        uuid.New(),
		Kind:      kind,
		Status:    TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Cancel:    cancel,
	}
	tm.tasks[task.ID] = task

	tm.wg.Add(1)
	go func() {
		defer tm.wg.Done()
		defer stop()
		defer cancel()

		tm.runTask(taskCtx, task, fn)
	}()

	return task.ID, nil
}

// runTask выполняет задачу и обновляет ее статус
func (tm *TaskManager) runTask(ctx context.Context, task *Task, fn TaskFunc) {
	log := tm.logger.With(zap.String("taskID", task.ID.String()), zap.String("kind", task.Kind))
	tm.updateTaskStatus(task, TaskStatusRunning, "Задача запущена")

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn(ctx)
	}()

	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		log.Info("Task context cancelled")
		tm.updateTaskStatus(task, TaskStatusCancelled, "Задача отменена")
	case err != nil:
		log.Error("Task failed", zap.Error(err))
		tm.updateTaskStatus(task, TaskStatusFailed, fmt.Sprintf("Ошибка: %v", err))
	default:
		log.Debug("Task completed")
		tm.updateTaskStatus(task, TaskStatusCompleted, "Задача успешно выполнена")
	}
}

// updateTaskStatus обновляет статус задачи и вызывает коллбэки
func (tm *TaskManager) updateTaskStatus(task *Task, status TaskStatus, message string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	// Отмена через CancelTask уже выставила финальный статус.
	if task.Status == TaskStatusCancelled {
		return
	}
	task.Status = status
	task.Message = message
	task.UpdatedAt = time.Now()

	snapshot := *task
	for _, callback := range tm.callbacks[task.ID] {
		go callback(snapshot)
	}
}

// GetTask возвращает копию задачи по ID
func (tm *TaskManager) GetTask(taskID uuid.UUID) (Task, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	task, ok := tm.tasks[taskID]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return *task, nil
}

// ActiveCount возвращает число задач в статусах pending и running.
func (tm *TaskManager) ActiveCount() int {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	n := 0
	for _, task := range tm.tasks {
		if !task.Status.finished() {
			n++
		}
	}
	return n
}

// CancelTask отменяет выполнение задачи
func (tm *TaskManager) CancelTask(taskID uuid.UUID) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	task, ok := tm.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if task.Status.finished() {
		return fmt.Errorf("невозможно отменить задачу в статусе %s", task.Status)
	}

	if task.Cancel != nil {
		task.Cancel()
	}
	task.Status = TaskStatusCancelled
	task.Message = "Задача отменена"
	task.UpdatedAt = time.Now()
	return nil
}

// RegisterCallback регистрирует функцию обратного вызова для задачи
func (tm *TaskManager) RegisterCallback(taskID uuid.UUID, callback TaskCallback) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if _, ok := tm.tasks[taskID]; !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	tm.callbacks[taskID] = append(tm.callbacks[taskID], callback)
	return nil
}

// CleanupTasks удаляет завершенные задачи, которые старше указанного времени
func (tm *TaskManager) CleanupTasks(age time.Duration) int {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, task := range tm.tasks {
		if task.Status.finished() && now.Sub(task.UpdatedAt) > age {
			delete(tm.tasks, id)
			delete(tm.callbacks, id)
			removed++
		}
	}
	return removed
}

// Shutdown перестает принимать задачи и ждет завершения запущенных.
// По истечении ctx оставшиеся задачи отменяются.
func (tm *TaskManager) Shutdown(ctx context.Context) error {
	tm.mu.Lock()
	tm.closed = true
	tm.mu.Unlock()

	done := make(chan struct{})
	go func() {
		tm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		tm.cancelAll()
		return nil
	case <-ctx.Done():
		tm.cancelAll()
		return errors.New("таймаут при ожидании завершения задач")
	}
}
