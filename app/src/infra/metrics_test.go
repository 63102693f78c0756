package infra

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestInitMetricsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() { InitMetrics() })
	assert.NotPanics(t, func() { InitMetrics() })
}

func TestMetricsHandlerServesContent(t *testing.T) {
	RecordMeasurement("handler-room")
	handler := Handler()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Result().StatusCode)
	assert.Contains(t, rr.Body.String(), "# HELP")
	assert.Contains(t, rr.Body.String(), `airflow_measurements_recorded_total{room="handler-room"}`)
}

func TestStartMetricsServerWithoutPortIsNoop(t *testing.T) {
	logger := NewLogger(io.Discard, "metrics")
	assert.NotPanics(t, func() { StartMetricsServer("", logger) })
}

func TestHTTPMiddlewareRecordsMetrics(t *testing.T) {
	t.Log("Step 1: capture the request counter before the call")
	beforeRequests := testutil.ToFloat64(HttpRequestsTotal)
	beforeErrors := testutil.ToFloat64(HttpRequestErrorsTotal)

	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	t.Log("Step 2: the counter grew, the error counter did not")
	assert.Equal(t, beforeRequests+1, testutil.ToFloat64(HttpRequestsTotal))
	assert.Equal(t, beforeErrors, testutil.ToFloat64(HttpRequestErrorsTotal))
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestHTTPMiddlewareRecordsServerErrors(t *testing.T) {
	beforeErrors := testutil.ToFloat64(HttpRequestErrorsTotal)

	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, beforeErrors+1, testutil.ToFloat64(HttpRequestErrorsTotal))
}

func TestGRPCUnaryInterceptorRecordsMetrics(t *testing.T) {
	interceptor := GRPCUnaryInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/airflow.v1.AirflowService/CalculateAirflow"}

	before := testutil.ToFloat64(HttpRequestsTotal)
	resp, err := interceptor(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, before+1, testutil.ToFloat64(HttpRequestsTotal))

	beforeErrors := testutil.ToFloat64(HttpRequestErrorsTotal)
	_, err = interceptor(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.Internal, "boom")
	})
	assert.Error(t, err)
	assert.Equal(t, beforeErrors+1, testutil.ToFloat64(HttpRequestErrorsTotal))
}

func TestEngineMetrics(t *testing.T) {
	ObserveEstimate("metrics-room", "ok")
	ObserveEstimate("metrics-room", "not_decaying")
	ObserveEstimate("metrics-room", "not_decaying")
	assert.Equal(t, 1.0, testutil.ToFloat64(EstimatesTotal.WithLabelValues("metrics-room", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(EstimatesTotal.WithLabelValues("metrics-room", "not_decaying")))

	SetLastEstimate("metrics-room", 5.9, 1)
	assert.Equal(t, 5.9, testutil.ToFloat64(LastACH.WithLabelValues("metrics-room")))
	assert.Equal(t, 1.0, testutil.ToFloat64(LastConfidence.WithLabelValues("metrics-room")))

	assert.NotPanics(t, func() { ObserveFit(-time.Millisecond) })
}

func TestRecordDBBatchFlushIncrementsMetrics(t *testing.T) {
	before := testutil.ToFloat64(DbBatchFlushTotal)

	RecordDBBatchFlush(500*time.Millisecond, 10*time.Millisecond, 7)

	assert.Equal(t, before+1, testutil.ToFloat64(DbBatchFlushTotal))
	assert.Equal(t, 7.0, testutil.ToFloat64(DbBatchSize))
}

func TestIngestMetrics(t *testing.T) {
	before := testutil.ToFloat64(ReadingBatchesTotal.WithLabelValues("test"))
	IncReadingBatches("test")
	assert.Equal(t, before+1, testutil.ToFloat64(ReadingBatchesTotal.WithLabelValues("test")))

	gauge := testutil.ToFloat64(IngestWorkersActive)
	WorkerStarted()
	assert.Equal(t, gauge+1, testutil.ToFloat64(IngestWorkersActive))
	WorkerFinished()
	assert.Equal(t, gauge, testutil.ToFloat64(IngestWorkersActive))
}

func TestStatusRecorder(t *testing.T) {
	recorder := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	recorder.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, recorder.Status())
}
