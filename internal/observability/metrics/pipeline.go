package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

// PipelineMetrics records stage outcomes, document throughput and LLM spend.
type PipelineMetrics struct {
	service string

	stageTotal      *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec
	llmTokensTotal  *prometheus.CounterVec
	llmCostTotal    *prometheus.CounterVec
}

func NewPipelineMetrics(service string, reg prometheus.Registerer) *PipelineMetrics {
	stageTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_total",
			Help:      "Total pipeline stage runs by outcome.",
		},
		[]string{"service", "stage", "outcome"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds by outcome.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "stage", "outcome"},
	)
	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "document_process_total",
			Help:      "Total processed documents by status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "document_process_duration_seconds",
			Help:      "Document processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "document_process_in_flight",
			Help:      "Number of in-flight document processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between document creation and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	llmTokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "LLM token usage by direction.",
		},
		[]string{"service", "direction"},
	)
	llmCostTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "cost_total",
			Help:      "Accumulated LLM cost in the configured billing currency.",
		},
		[]string{"service"},
	)

	reg.MustRegister(
		stageTotal,
		stageDuration,
		processTotal,
		processDuration,
		processInFlight,
		queueLag,
		llmTokensTotal,
		llmCostTotal,
	)

	return &PipelineMetrics{
		service:         service,
		stageTotal:      stageTotal,
		stageDuration:   stageDuration,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		queueLag:        queueLag,
		llmTokensTotal:  llmTokensTotal,
		llmCostTotal:    llmCostTotal,
	}
}

func (m *PipelineMetrics) StageFinished(stage domain.Stage, success bool, elapsed time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.stageTotal.WithLabelValues(m.service, string(stage), outcome).Inc()
	m.stageDuration.WithLabelValues(m.service, string(stage), outcome).Observe(elapsed.Seconds())
}

func (m *PipelineMetrics) LLMUsage(u domain.TokenUsage, cost float64) {
	if u.InputTokens > 0 {
		m.llmTokensTotal.WithLabelValues(m.service, "in").Add(float64(u.InputTokens))
	}
	if u.OutputTokens > 0 {
		m.llmTokensTotal.WithLabelValues(m.service, "out").Add(float64(u.OutputTokens))
	}
	if cost > 0 {
		m.llmCostTotal.WithLabelValues(m.service).Add(cost)
	}
}

func (m *PipelineMetrics) StartDocument() {
	m.processInFlight.Inc()
}

func (m *PipelineMetrics) FinishDocument(duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(m.service, status).Inc()
	m.processDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}
