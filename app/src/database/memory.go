package database

import (
	"context"
	"fmt"
	"sync"

	"airflow-service/app/src/domain"
	"airflow-service/app/src/shared/constants"
)

// DefaultMemoryRetention is the number of estimates kept per room by MemoryRepository.
const DefaultMemoryRetention = 1000

// MemoryRepository keeps the latest estimates of each room in process memory.
type MemoryRepository struct {
	mu        sync.RWMutex
	retention int
	byRoom    map[string][]domain.EstimateRecord
}

func NewMemoryRepository(retention int) *MemoryRepository {
	if retention <= 0 {
		retention = DefaultMemoryRetention
	}
	return &MemoryRepository{retention: retention, byRoom: make(map[string][]domain.EstimateRecord)}
}

func (m *MemoryRepository) Add(ctx context.Context, record domain.EstimateRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	record, err := validateRecord(record)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	records := append(m.byRoom[record.RoomID], record)
	if len(records) > m.retention {
		records = append([]domain.EstimateRecord(nil), records[len(records)-m.retention:]...)
	}
	m.byRoom[record.RoomID] = records
	return nil
}

func (m *MemoryRepository) History(ctx context.Context, roomID string, limit int) ([]domain.EstimateRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, err := constants.ParseRoomID(roomID)
	if err != nil {
		return nil, fmt.Errorf("memory repository: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.byRoom[id]
	limit = normalizeLimit(limit)
	if limit > len(records) {
		limit = len(records)
	}

	history := make([]domain.EstimateRecord, 0, limit)
	for i := len(records) - 1; i >= len(records)-limit; i-- {
		history = append(history, records[i])
	}
	return history, nil
}

func (m *MemoryRepository) Close() error {
	return nil
}

var _ domain.EstimateRepository = (*MemoryRepository)(nil)
