package grpcapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"airflow-service/app/src/domain"
	"airflow-service/app/src/infra"
)

type stubService struct {
	recorded    []domain.Measurement
	lastRoom    string
	recordErr   error
	estimate    domain.AirflowEstimate
	estimateErr error
}

func (s *stubService) RecordMeasurement(_ context.Context, roomID string, m domain.Measurement) error {
	s.lastRoom = roomID
	if s.recordErr != nil {
		return s.recordErr
	}
	s.recorded = append(s.recorded, m)
	return nil
}

func (s *stubService) CalculateAirflow(_ context.Context, roomID string) (domain.AirflowEstimate, error) {
	s.lastRoom = roomID
	return s.estimate, s.estimateErr
}

func (s *stubService) Rooms() []domain.RoomContext {
	return nil
}

func measurementRequest(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	req, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return req
}

func dialBufconn(t *testing.T, service domain.AirflowService, logger *infra.Logger) *AirflowClient {
	t.Helper()

	listener := bufconn.Listen(1 << 20)
	server := NewServer(service, logger)
	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewAirflowClient(conn)
}

func TestNewServerRegistersService(t *testing.T) {
	srv := NewServer(&stubService{}, infra.NewLogger(bytes.NewBuffer(nil), "test"))
	info := srv.GetServiceInfo()
	require.Contains(t, info, ServiceName)

	var methods []string
	for _, m := range info[ServiceName].Methods {
		methods = append(methods, m.Name)
	}
	assert.ElementsMatch(t, []string{"RecordMeasurement", "CalculateAirflow"}, methods)
}

func TestRecordMeasurementValidatesRequest(t *testing.T) {
	server := &airflowServer{service: &stubService{}}

	t.Log("Step 1: nil request")
	_, err := server.RecordMeasurement(context.Background(), nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	t.Log("Step 2: malformed fields")
	tests := []struct {
		name   string
		fields map[string]any
	}{
		{"missing room", map[string]any{"timestamp": 1, "concentration_ppm": 400}},
		{"bad room", map[string]any{"room_id": "a/b", "timestamp": 1, "concentration_ppm": 400}},
		{"missing timestamp", map[string]any{"room_id": "lab", "concentration_ppm": 400}},
		{"string concentration", map[string]any{"room_id": "lab", "timestamp": 1, "concentration_ppm": "400"}},
		{"infinite timestamp", map[string]any{"room_id": "lab", "timestamp": math.Inf(1), "concentration_ppm": 400}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := server.RecordMeasurement(context.Background(), measurementRequest(t, tc.fields))
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

func TestRecordMeasurementForwardsToService(t *testing.T) {
	service := &stubService{}
	server := &airflowServer{service: service}

	req := measurementRequest(t, map[string]any{"room_id": " Lab ", "timestamp": 30.5, "concentration_ppm": 380})
	_, err := server.RecordMeasurement(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "lab", service.lastRoom)
	assert.Equal(t, []domain.Measurement{{Timestamp: 30.5, ConcentrationPPM: 380}}, service.recorded)

	t.Log("Step 2: unknown rooms map to NotFound")
	service.recordErr = fmt.Errorf("registry: %q: %w", "lab", domain.ErrRoomNotFound)
	_, err = server.RecordMeasurement(context.Background(), req)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestCalculateAirflowTranslatesErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    codes.Code
		message string
	}{
		{"insufficient", domain.ErrInsufficientData, codes.FailedPrecondition, "insufficient_data"},
		{"not decaying", fmt.Errorf("calculator: %w", domain.ErrNotDecaying), codes.FailedPrecondition, "not_decaying"},
		{"fit failed", &domain.FitFailedError{Err: errors.New("singular")}, codes.FailedPrecondition, "fit_failed"},
		{"unknown room", domain.ErrRoomNotFound, codes.NotFound, "room not found"},
		{"internal", errors.New("boom"), codes.Internal, "internal server error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := &airflowServer{service: &stubService{estimateErr: tc.err}}
			_, err := server.CalculateAirflow(context.Background(), wrapperspb.String("lab"))
			st, ok := status.FromError(err)
			require.True(t, ok)
			assert.Equal(t, tc.code, st.Code())
			assert.Equal(t, tc.message, st.Message())
		})
	}

	server := &airflowServer{service: &stubService{}}
	_, err := server.CalculateAirflow(context.Background(), nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = server.CalculateAirflow(context.Background(), wrapperspb.String(""))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestAirflowServiceOverBufconn(t *testing.T) {
	computed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	service := &stubService{estimate: domain.AirflowEstimate{
		RoomID: "lab", ACH: 5.9, AirflowM3H: 283.2, AirflowCFM: 166.5,
		Confidence: 0.99, Samples: 6, Bucket: domain.ConfidenceHigh, ComputedAt: computed,
	}}
	var logs bytes.Buffer
	client := dialBufconn(t, service, infra.NewLogger(&logs, "grpc-test"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, metadataRequestID, "rpc-42")

	t.Log("Step 1: record a measurement through the client")
	_, err := client.RecordMeasurement(ctx, measurementRequest(t, map[string]any{
		"room_id": "lab", "timestamp": 0, "concentration_ppm": 400,
	}))
	require.NoError(t, err)
	require.Len(t, service.recorded, 1)

	t.Log("Step 2: calculate and decode the struct response")
	resp, err := client.CalculateAirflow(ctx, wrapperspb.String("lab"))
	require.NoError(t, err)
	fields := resp.GetFields()
	assert.Equal(t, "lab", fields["room_id"].GetStringValue())
	assert.InDelta(t, 5.9, fields["ach"].GetNumberValue(), 1e-9)
	assert.InDelta(t, 283.2, fields["airflow_m3h"].GetNumberValue(), 1e-9)
	assert.InDelta(t, 166.5, fields["airflow_cfm"].GetNumberValue(), 1e-9)
	assert.InDelta(t, 0.99, fields["confidence"].GetNumberValue(), 1e-9)
	assert.Equal(t, 6.0, fields["samples"].GetNumberValue())
	assert.Equal(t, "high", fields["bucket"].GetStringValue())
	assert.Equal(t, "2024-05-01T12:00:00Z", fields["computed_at"].GetStringValue())

	t.Log("Step 3: no-result reasons travel as FailedPrecondition")
	service.estimateErr = domain.ErrNotDecaying
	_, err = client.CalculateAirflow(ctx, wrapperspb.String("lab"))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	t.Log("Step 4: the interceptor logged every call with the correlation id")
	assert.Contains(t, logs.String(), "/airflow.v1.AirflowService/CalculateAirflow completed")
	assert.Contains(t, logs.String(), "/airflow.v1.AirflowService/CalculateAirflow failed")
	assert.Contains(t, logs.String(), `"trace_id":"rpc-42"`)
}
