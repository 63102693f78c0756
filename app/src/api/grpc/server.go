package grpcapi

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"airflow-service/app/src/domain"
	"airflow-service/app/src/infra"
	"airflow-service/app/src/shared/constants"
	sharederrors "airflow-service/app/src/shared/errors"
)

const metadataRequestID = "x-request-id"

// NewServer constructs a gRPC server exposing the AirflowService transport.
func NewServer(service domain.AirflowService, logger *infra.Logger) *grpc.Server {
	interceptors := []grpc.UnaryServerInterceptor{
		loggingInterceptor(logger),
		infra.GRPCUnaryInterceptor(),
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	RegisterAirflowServer(server, &airflowServer{service: service})
	return server
}

type airflowServer struct {
	service domain.AirflowService
}

func (s *airflowServer) RecordMeasurement(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request must not be nil")
	}

	roomID, err := roomIDFrom(req.GetFields()["room_id"].GetStringValue())
	if err != nil {
		return nil, err
	}

	timestamp, err := numberField(req, "timestamp")
	if err != nil {
		return nil, err
	}
	concentration, err := numberField(req, "concentration_ppm")
	if err != nil {
		return nil, err
	}

	measurement := domain.Measurement{Timestamp: timestamp, ConcentrationPPM: concentration}
	if err := s.service.RecordMeasurement(ctx, roomID, measurement); err != nil {
		return nil, translateServiceError(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *airflowServer) CalculateAirflow(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request must not be nil")
	}

	roomID, err := roomIDFrom(req.GetValue())
	if err != nil {
		return nil, err
	}

	estimate, err := s.service.CalculateAirflow(ctx, roomID)
	if err != nil {
		return nil, translateServiceError(err)
	}
	return toProtoEstimate(estimate), nil
}

func roomIDFrom(value string) (string, error) {
	id, err := constants.ParseRoomID(value)
	if err != nil {
		return "", status.Error(codes.InvalidArgument, "invalid room_id")
	}
	return id, nil
}

func numberField(req *structpb.Struct, name string) (float64, error) {
	value, ok := req.GetFields()[name]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	number, ok := value.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a number", name)
	}
	if math.IsNaN(number.NumberValue) || math.IsInf(number.NumberValue, 0) {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be finite", name)
	}
	return number.NumberValue, nil
}

func toProtoEstimate(estimate domain.AirflowEstimate) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"room_id":     structpb.NewStringValue(estimate.RoomID),
		"ach":         structpb.NewNumberValue(estimate.ACH),
		"airflow_m3h": structpb.NewNumberValue(estimate.AirflowM3H),
		"airflow_cfm": structpb.NewNumberValue(estimate.AirflowCFM),
		"confidence":  structpb.NewNumberValue(estimate.Confidence),
		"samples":     structpb.NewNumberValue(float64(estimate.Samples)),
		"bucket":      structpb.NewStringValue(string(estimate.Bucket)),
		"computed_at": structpb.NewStringValue(estimate.ComputedAt.UTC().Format(constants.TimeFormat)),
	}}
}

func translateServiceError(err error) error {
	if reason := domain.ReasonOf(err); reason != domain.ReasonNone {
		return status.Error(codes.FailedPrecondition, string(reason))
	}

	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return status.Error(codes.NotFound, "room not found")
	case errors.Is(err, sharederrors.ErrInvalidRoomID):
		return status.Error(codes.InvalidArgument, "invalid room_id")
	default:
		return status.Error(codes.Internal, "internal server error")
	}
}

func loggingInterceptor(logger *infra.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(metadataRequestID); len(ids) > 0 && strings.TrimSpace(ids[0]) != "" {
				ctx = infra.WithCorrelationID(ctx, strings.TrimSpace(ids[0]))
			}
		}

		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start)
		if err != nil {
			logger.Printf(ctx, "gRPC %s failed in %s: %v", info.FullMethod, duration, err)
		} else {
			logger.Printf(ctx, "gRPC %s completed in %s", info.FullMethod, duration)
		}
		return resp, err
	}
}

var _ AirflowServer = (*airflowServer)(nil)
