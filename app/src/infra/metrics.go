package infra

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// HTTP and gRPC request metrics
	HttpRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP and gRPC requests",
	})
	HttpRequestErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "http_request_errors_total",
		Help: "Total number of HTTP and gRPC request errors",
	})
	ProcessingDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "airflow_request_duration_seconds",
		Help:    "Duration of request processing in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// Engine metrics
	MeasurementsRecordedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "airflow_measurements_recorded_total",
		Help: "Total number of CO measurements recorded per room",
	}, []string{"room"})
	EstimatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "airflow_estimates_total",
		Help: "Airflow calculations per room by outcome",
	}, []string{"room", "outcome"})
	FitDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "airflow_fit_duration_seconds",
		Help:    "Duration of exponential decay fits in seconds",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})
	LastACH = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "airflow_last_ach",
		Help: "Air changes per hour of the last successful estimate",
	}, []string{"room"})
	LastConfidence = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "airflow_last_confidence",
		Help: "Confidence of the last successful estimate",
	}, []string{"room"})

	// Database metrics
	DbBatchFlushTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "airflow_db_batch_flush_total",
		Help: "Total number of database batch flush operations",
	})
	DbBatchDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "airflow_db_batch_duration_seconds",
		Help:    "Duration of database batch flush operations in seconds",
		Buckets: prometheus.DefBuckets,
	})
	DbBatchSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "airflow_db_batch_size",
		Help: "Size of the last flushed batch",
	})
	DbBatchWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "airflow_db_batch_wait_seconds",
		Help:    "Wait time before batch flush (seconds)",
		Buckets: prometheus.DefBuckets,
	})
	DbWriteErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "airflow_db_write_errors_total",
		Help: "Total number of failed estimate writes",
	})

	// Ingestion metrics
	ReadingBatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "airflow_reading_batches_total",
		Help: "Total number of reading batches produced by each source",
	}, []string{"source"})
	IngestWorkersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "airflow_ingest_workers_active",
		Help: "Number of active ingest worker goroutines",
	})

	registerOnce      sync.Once
	metricsServerOnce sync.Once
)

func init() {
	InitMetrics()
}

// InitMetrics registers all Prometheus collectors used by the application.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HttpRequestsTotal,
			HttpRequestErrorsTotal,
			ProcessingDurationSeconds,
			MeasurementsRecordedTotal,
			EstimatesTotal,
			FitDurationSeconds,
			LastACH,
			LastConfidence,
			DbBatchFlushTotal,
			DbBatchDurationSeconds,
			DbBatchSize,
			DbBatchWaitSeconds,
			DbWriteErrorsTotal,
			ReadingBatchesTotal,
			IngestWorkersActive,
		)
	})
}

// Handler returns an HTTP handler that exposes the registered Prometheus metrics.
func Handler() http.Handler {
	InitMetrics()
	return promhttp.Handler()
}

// StartMetricsServer exposes Prometheus metrics on :port/metrics. An empty port disables it.
func StartMetricsServer(port string, logger *Logger) {
	InitMetrics()
	if port == "" {
		return
	}
	metricsServerOnce.Do(func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%s", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf(context.Background(), "metrics server error: %v", err)
			}
		}()
	})
}

// HTTPMiddleware instruments HTTP handlers with request/latency metrics.
func HTTPMiddleware(next http.Handler) http.Handler {
	InitMetrics()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		defer func() {
			ProcessingDurationSeconds.Observe(time.Since(start).Seconds())
			HttpRequestsTotal.Inc()

			if recorder.Status() >= http.StatusInternalServerError {
				HttpRequestErrorsTotal.Inc()
			}
		}()

		next.ServeHTTP(recorder, r)
	})
}

// GRPCUnaryInterceptor instruments gRPC unary handlers with request/latency metrics.
func GRPCUnaryInterceptor() grpc.UnaryServerInterceptor {
	InitMetrics()
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		start := time.Now()

		defer func() {
			ProcessingDurationSeconds.Observe(time.Since(start).Seconds())
			HttpRequestsTotal.Inc()

			if code := status.Code(err); code == codes.Internal || code == codes.Unknown {
				HttpRequestErrorsTotal.Inc()
			}
		}()

		return handler(ctx, req)
	}
}

// RecordMeasurement counts a recorded measurement for room.
func RecordMeasurement(room string) {
	MeasurementsRecordedTotal.WithLabelValues(room).Inc()
}

// ObserveEstimate counts a calculation outcome ("ok" or a no-result reason) for room.
func ObserveEstimate(room, outcome string) {
	EstimatesTotal.WithLabelValues(room, outcome).Inc()
}

// SetLastEstimate publishes the last successful estimate of room.
func SetLastEstimate(room string, ach, confidence float64) {
	LastACH.WithLabelValues(room).Set(ach)
	LastConfidence.WithLabelValues(room).Set(confidence)
}

// ObserveFit tracks the duration of a decay fit.
func ObserveFit(duration time.Duration) {
	FitDurationSeconds.Observe(nonNegative(duration).Seconds())
}

// RecordDBBatchFlush tracks a completed database batch flush.
func RecordDBBatchFlush(duration, wait time.Duration, size int) {
	DbBatchFlushTotal.Inc()
	DbBatchDurationSeconds.Observe(nonNegative(duration).Seconds())
	DbBatchWaitSeconds.Observe(nonNegative(wait).Seconds())
	DbBatchSize.Set(float64(size))
}

// IncDBWriteErrors counts a failed estimate write.
func IncDBWriteErrors() {
	DbWriteErrorsTotal.Inc()
}

// IncReadingBatches counts a batch produced by source.
func IncReadingBatches(source string) {
	ReadingBatchesTotal.WithLabelValues(source).Inc()
}

// WorkerStarted increments the ingest worker gauge.
func WorkerStarted() {
	IngestWorkersActive.Inc()
}

// WorkerFinished decrements the ingest worker gauge.
func WorkerFinished() {
	IngestWorkersActive.Dec()
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// statusRecorder captures the response status code for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Status() int {
	return r.status
}
