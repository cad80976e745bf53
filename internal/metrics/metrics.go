package metrics

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// Registry - общий реестр метрик процесса. promauto.With(Registry) регистрирует метрики
// здесь, а не в prometheus.DefaultRegistry.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

var (
	// VotesTotal - голоса по исходу (accepted, duplicate, closed, invalid_option, rate_limited, not_found, error).
	VotesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "novel_vote_votes_total",
			Help: "Total number of vote submissions partitioned by outcome.",
		},
		[]string{"outcome"},
	)
	// VoteDuration - длительность обработки голоса.
	VoteDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "novel_vote_submit_duration_seconds",
			Help:    "Duration of vote submission including tally update and threshold evaluation.",
			Buckets: prometheus.DefBuckets,
		},
	)
	// ClaimsTotal - попытки захвата генерации (won, lost).
	ClaimsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "novel_vote_generation_claims_total",
			Help: "Total number of generation claim attempts partitioned by result and trigger.",
		},
		[]string{"result", "trigger"},
	)
	// GenerationsTotal - завершенные генерации по статусу.
	GenerationsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "novel_vote_generations_total",
			Help: "Total number of generation records reaching a terminal status.",
		},
		[]string{"status", "reason"},
	)
	// GenerationDuration - время записи генерации от взятия в работу до исхода.
	GenerationDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "novel_vote_generation_duration_seconds",
			Help:    "Time generation records spent processing, from start to outcome.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 60, 90, 120, 180},
		},
		[]string{"status"},
	)
	// AITokensTotal - использованные токены модели.
	AITokensTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "novel_vote_ai_tokens_total",
			Help: "Total number of AI tokens used, partitioned by type.",
		},
		[]string{"type"},
	)
	// IllustrationsTotal - попытки иллюстрирования по исходу.
	IllustrationsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "novel_vote_illustrations_total",
			Help: "Total number of illustration attempts partitioned by outcome.",
		},
		[]string{"outcome"},
	)
	// TasksDispatched - задачи, отправленные фоновым исполнителям.
	TasksDispatched = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "novel_vote_tasks_dispatched_total",
			Help: "Total number of background tasks dispatched, partitioned by kind and transport.",
		},
		[]string{"kind", "transport"},
	)
)

// Handler отдает метрики реестра для /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// RunPusher периодически отправляет метрики в Pushgateway, пока ctx не отменен.
// Последняя отправка выполняется при остановке.
func RunPusher(ctx context.Context, pushgatewayURL, job string, interval time.Duration, logger *zap.Logger) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	instanceID := fmt.Sprintf("%s-%d", hostname, os.Getpid())
	pusher := push.New(pushgatewayURL, job).Gatherer(Registry).Grouping("instance", instanceID)

	if err := pusher.Push(); err != nil {
		return fmt.Errorf("initial push to pushgateway failed: %w", err)
	}
	logger.Info("Pushgateway pusher started",
		zap.String("job", job), zap.String("instance", instanceID), zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := pusher.Push(); err != nil {
				logger.Warn("Final push to pushgateway failed", zap.Error(err))
			}
			return nil
		case <-ticker.C:
			if err := pusher.Push(); err != nil {
				logger.Warn("Push to pushgateway failed", zap.Error(err))
			}
		}
	}
}
