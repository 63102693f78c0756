package database

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"airflow-service/app/src/domain"
	"airflow-service/app/src/infra"
	"airflow-service/app/src/shared/constants"
)

// Config contains the configuration required to connect to a Postgres database.
type Config struct {
	DSN    string
	Runner CommandRunner
	Logger *infra.Logger
	// BatchSize determines how many estimates are inserted together.
	BatchSize int
	// BatchTimeout specifies how long to wait before flushing a partial batch.
	BatchTimeout time.Duration
	// BufferSize controls the capacity of the inbound estimate queue.
	BufferSize int
}

var ErrRepositoryClosed = errors.New("postgres repository: repository closed")

const (
	insertEstimatesPrefix = `INSERT INTO public.airflow_estimates
    (room_id, ach, airflow_m3h, airflow_cfm, confidence, samples, computed_at)
VALUES `
	estimateColumns = 7

	selectHistorySQL = `SELECT room_id, ach, airflow_m3h, airflow_cfm, confidence, samples, computed_at
FROM public.airflow_estimates
WHERE room_id = $1
ORDER BY computed_at DESC, id DESC
LIMIT $2`

	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 1000
)

// Repository is the Postgres estimate history. Writes are queued and inserted in
// batches by a single goroutine.
type Repository struct {
	dsn      string
	password string

	runner CommandRunner
	logger *infra.Logger

	batchSize    int
	batchTimeout time.Duration
	buffer       chan domain.EstimateRecord
	stopCh       chan struct{}
	wg           sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
}

// New creates a repository backed by Postgres using a SQL command runner.
func New(ctx context.Context, cfg Config) (*Repository, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres repository: DSN is required")
	}

	parsed, err := url.Parse(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres repository: parse dsn: %w", err)
	}
	password, _ := parsed.User.Password()

	runner := cfg.Runner
	if runner == nil {
		runner = NewSQLRunner()
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = batchSize
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout < 0 {
		batchTimeout = 0
	}

	repo := &Repository{
		dsn:          cfg.DSN,
		password:     password,
		runner:       runner,
		logger:       cfg.Logger,
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		buffer:       make(chan domain.EstimateRecord, bufferSize),
		stopCh:       make(chan struct{}),
	}

	repo.wg.Add(1)
	go repo.run()

	return repo, nil
}

// Close flushes queued estimates and releases the runner.
func (r *Repository) Close() error {
	r.mu.Lock()
	alreadyClosed := r.closed
	if !r.closed {
		r.closed = true
		close(r.stopCh)
	}
	r.mu.Unlock()

	if !alreadyClosed {
		r.wg.Wait()
	}

	var err error
	r.closeOnce.Do(func() {
		err = r.runner.Close()
	})
	return err
}

// Add queues an estimate for insertion.
func (r *Repository) Add(ctx context.Context, record domain.EstimateRecord) error {
	record, err := validateRecord(record)
	if err != nil {
		return err
	}

	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return ErrRepositoryClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopCh:
		return ErrRepositoryClosed
	case r.buffer <- record:
		return nil
	}
}

// History returns up to limit estimates of roomID, newest first.
func (r *Repository) History(ctx context.Context, roomID string, limit int) ([]domain.EstimateRecord, error) {
	id, err := constants.ParseRoomID(roomID)
	if err != nil {
		return nil, fmt.Errorf("postgres repository: %w", err)
	}

	records := []domain.EstimateRecord{}
	err = r.runner.Query(ctx, r.dsn, selectHistorySQL, func(row RowScanner) error {
		var record domain.EstimateRecord
		if err := row.Scan(&record.RoomID, &record.ACH, &record.AirflowM3H, &record.AirflowCFM,
			&record.Confidence, &record.Samples, &record.ComputedAt); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		record.ComputedAt = record.ComputedAt.UTC()
		records = append(records, record)
		return nil
	}, id, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("postgres repository: history: %w", err)
	}
	return records, nil
}

func (r *Repository) run() {
	defer r.wg.Done()

	batch := make([]domain.EstimateRecord, 0, r.batchSize)
	var batchStart time.Time
	var timer *time.Timer

	stopTimer := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer = nil
	}

	flush := func() {
		if len(batch) == 0 {
			return
		}
		r.flush(batch, time.Since(batchStart))
		batch = batch[:0]
		stopTimer()
	}

	appendToBatch := func(record domain.EstimateRecord) {
		batch = append(batch, record)
		if len(batch) == 1 {
			batchStart = time.Now()
			if r.batchTimeout > 0 {
				timer = time.NewTimer(r.batchTimeout)
			}
		}
		if len(batch) >= r.batchSize {
			flush()
		}
	}

	for {
		var timeout <-chan time.Time
		if timer != nil {
			timeout = timer.C
		}

		select {
		case <-r.stopCh:
			for {
				select {
				case record := <-r.buffer:
					appendToBatch(record)
				default:
					flush()
					return
				}
			}
		case record := <-r.buffer:
			appendToBatch(record)
		case <-timeout:
			timer = nil
			flush()
		}
	}
}

func (r *Repository) flush(batch []domain.EstimateRecord, wait time.Duration) {
	ctx := context.Background()
	start := time.Now()

	statement, args := buildInsert(batch)
	tag, err := r.runner.Exec(ctx, r.dsn, r.password, statement, args...)
	if err == nil {
		var affected int64
		affected, err = parseRowsAffected(tag)
		if err == nil && affected != int64(len(batch)) {
			err = fmt.Errorf("inserted %d of %d rows", affected, len(batch))
		}
	}
	infra.RecordDBBatchFlush(time.Since(start), wait, len(batch))

	if err != nil {
		infra.IncDBWriteErrors()
		if r.logger != nil {
			r.logger.Errorf(ctx, "postgres repository: batch insert failed size=%d: %v", len(batch), err)
		}
		return
	}
	if r.logger != nil {
		r.logger.Debugf(ctx, "postgres repository: inserted %d estimates", len(batch))
	}
}

func buildInsert(batch []domain.EstimateRecord) (string, []any) {
	var b strings.Builder
	b.WriteString(insertEstimatesPrefix)

	args := make([]any, 0, len(batch)*estimateColumns)
	for i, record := range batch {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < estimateColumns; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString("$" + strconv.Itoa(i*estimateColumns+c+1))
		}
		b.WriteByte(')')

		args = append(args, record.RoomID, record.ACH, record.AirflowM3H, record.AirflowCFM,
			record.Confidence, record.Samples, record.ComputedAt.UTC())
	}
	return b.String(), args
}

func validateRecord(record domain.EstimateRecord) (domain.EstimateRecord, error) {
	id, err := constants.ParseRoomID(record.RoomID)
	if err != nil {
		return record, fmt.Errorf("postgres repository: %w", err)
	}
	record.RoomID = id

	for _, v := range []float64{record.ACH, record.AirflowM3H, record.AirflowCFM, record.Confidence} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return record, errors.New("postgres repository: estimate contains non-finite values")
		}
	}
	if record.ComputedAt.IsZero() {
		return record, errors.New("postgres repository: computed_at is required")
	}
	return record, nil
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}

func parseRowsAffected(tag string) (int64, error) {
	fields := strings.Fields(strings.TrimSpace(tag))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty command tag")
	}

	switch strings.ToUpper(fields[0]) {
	case "INSERT":
		if len(fields) < 3 {
			return 0, fmt.Errorf("unexpected command tag %q", tag)
		}
	case "UPDATE", "DELETE":
		if len(fields) < 2 {
			return 0, fmt.Errorf("unexpected command tag %q", tag)
		}
	default:
		return 0, fmt.Errorf("unsupported command tag %q", tag)
	}

	count, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse rows affected: %w", err)
	}
	return count, nil
}

var _ domain.EstimateRepository = (*Repository)(nil)
