package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"airflow-service/app/src/domain"
	"airflow-service/app/src/infra"
)

const sourceName = "kafka"

type Config struct {
	Brokers     []string
	Topic       string
	GroupID     string
	PollTimeout time.Duration
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Source turns CO reading messages of a Kafka topic into one-reading batches.
// Offsets are committed once a batch is handed off or the message is rejected.
type Source struct {
	cfg    Config
	reader messageReader
	logger *infra.Logger
}

func NewSource(cfg Config, logger *infra.Logger) (*Source, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka source: at least one broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka source: topic must not be empty")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("kafka source: consumer group must not be empty")
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafkago.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newSource(cfg, reader, logger), nil
}

func newSource(cfg Config, reader messageReader, logger *infra.Logger) *Source {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	return &Source{cfg: cfg, reader: reader, logger: logger}
}

func (s *Source) Close() error {
	if s == nil || s.reader == nil {
		return nil
	}
	return s.reader.Close()
}

// Run blocks until ctx is cancelled or the reader is closed. It closes out on return.
func (s *Source) Run(ctx context.Context, out chan<- domain.ReadingBatch) {
	defer close(out)

	s.logger.Printf(ctx, "kafka source: consuming topic=%s group=%s brokers=%s",
		s.cfg.Topic, s.cfg.GroupID, strings.Join(s.cfg.Brokers, ","))

	for {
		if ctx.Err() != nil {
			return
		}

		fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
		msg, err := s.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
				continue
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, kafkago.ErrGroupClosed):
				s.logger.Println(ctx, "kafka source: reader closed")
				return
			default:
				s.logger.Errorf(ctx, "kafka source: fetch: %v", err)
				continue
			}
		}

		roomID, measurement, err := DecodeReading(msg.Value)
		if err != nil {
			s.logger.Printf(ctx, "kafka source: skipping partition=%d offset=%d: %v", msg.Partition, msg.Offset, err)
		} else {
			batch := domain.ReadingBatch{
				ID:           fmt.Sprintf("%s-%d-%d", msg.Topic, msg.Partition, msg.Offset),
				RoomID:       roomID,
				Measurements: []domain.Measurement{measurement},
			}
			select {
			case <-ctx.Done():
				return
			case out <- batch:
			}
			infra.IncReadingBatches(sourceName)
		}

		commitCtx, commitCancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
		if err := s.reader.CommitMessages(commitCtx, msg); err != nil && ctx.Err() == nil {
			s.logger.Errorf(ctx, "kafka source: commit offset=%d: %v", msg.Offset, err)
		}
		commitCancel()
	}
}

type readingEnvelope struct {
	RoomID    string          `json:"roomId"`
	Timestamp json.RawMessage `json:"timestamp"`
	CO        json.RawMessage `json:"coPpm"`
}

// DecodeReading parses {"roomId": "...", "timestamp": <unix seconds | RFC3339>, "coPpm": <number>}.
// Numbers may also be sent as strings.
func DecodeReading(raw []byte) (string, domain.Measurement, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var env readingEnvelope
	if err := dec.Decode(&env); err != nil {
		return "", domain.Measurement{}, fmt.Errorf("decode reading: %w", err)
	}

	roomID := strings.TrimSpace(env.RoomID)
	if roomID == "" {
		return "", domain.Measurement{}, errors.New("roomId missing or empty")
	}

	timestamp, err := parseTimestamp(env.Timestamp)
	if err != nil {
		return "", domain.Measurement{}, err
	}
	concentration, err := parseNumber("coPpm", env.CO)
	if err != nil {
		return "", domain.Measurement{}, err
	}

	return roomID, domain.Measurement{Timestamp: timestamp, ConcentrationPPM: concentration}, nil
}

func parseTimestamp(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, errors.New("timestamp missing")
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		trimmed := strings.TrimSpace(asString)
		if ts, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
			return float64(ts.UnixNano()) / float64(time.Second), nil
		}
	}
	return parseNumber("timestamp", raw)
}

func parseNumber(field string, raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("%s missing", field)
	}

	var value float64
	var asNumber json.Number
	var asString string
	switch {
	case json.Unmarshal(raw, &asNumber) == nil:
		f, err := asNumber.Float64()
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", field, err)
		}
		value = f
	case json.Unmarshal(raw, &asString) == nil:
		f, err := strconv.ParseFloat(strings.TrimSpace(asString), 64)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", field, err)
		}
		value = f
	default:
		return 0, fmt.Errorf("%s format not recognized", field)
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%s is not finite", field)
	}
	return value, nil
}

var _ domain.ReadingSource = (*Source)(nil)
