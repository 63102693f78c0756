package core

import (
	"context"
	"fmt"
	"math"
	"sync"

	"airflow-service/app/src/domain"
	"airflow-service/app/src/infra"
	"airflow-service/app/src/shared/constants"
)

type RegistryConfig struct {
	DefaultVolumeM3  float64
	AutoRegister     bool
	FitMaxIterations int
}

// Registry keeps one independent Calculator per room.
type Registry struct {
	mu          sync.RWMutex
	calculators map[string]*Calculator
	order       []string
	cfg         RegistryConfig
	fitter      DecayFitter
	logger      Logger
}

func NewRegistry(rooms []domain.RoomContext, cfg RegistryConfig, logger Logger) (*Registry, error) {
	if !(cfg.DefaultVolumeM3 > 0) || math.IsInf(cfg.DefaultVolumeM3, 1) {
		cfg.DefaultVolumeM3 = domain.DefaultRoomVolumeM3
	}

	r := &Registry{
		calculators: make(map[string]*Calculator, len(rooms)),
		cfg:         cfg,
		fitter:      NewDecayFitter(cfg.FitMaxIterations),
		logger:      logger,
	}
	for _, room := range rooms {
		id, err := constants.ParseRoomID(room.ID)
		if err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
		if _, exists := r.calculators[id]; exists {
			return nil, fmt.Errorf("registry: duplicate room %q", id)
		}
		room.ID = id
		if err := room.Validate(); err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
		r.add(room)
	}
	return r, nil
}

func (r *Registry) RecordMeasurement(ctx context.Context, roomID string, measurement domain.Measurement) error {
	calc, err := r.calculator(ctx, roomID, r.cfg.AutoRegister)
	if err != nil {
		return err
	}

	calc.Record(measurement.Timestamp, measurement.ConcentrationPPM)
	infra.RecordMeasurement(calc.room.ID)
	return nil
}

func (r *Registry) CalculateAirflow(ctx context.Context, roomID string) (domain.AirflowEstimate, error) {
	calc, err := r.calculator(ctx, roomID, false)
	if err != nil {
		return domain.AirflowEstimate{}, err
	}

	estimate, err := calc.Calculate(ctx)
	if err != nil {
		infra.ObserveEstimate(calc.room.ID, string(domain.ReasonOf(err)))
		return domain.AirflowEstimate{}, err
	}

	infra.ObserveEstimate(calc.room.ID, "ok")
	infra.SetLastEstimate(calc.room.ID, estimate.ACH, estimate.Confidence)
	return estimate, nil
}

// Rooms returns the registered rooms in registration order.
func (r *Registry) Rooms() []domain.RoomContext {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]domain.RoomContext, 0, len(r.order))
	for _, id := range r.order {
		rooms = append(rooms, r.calculators[id].room)
	}
	return rooms
}

func (r *Registry) Room(roomID string) (domain.RoomContext, error) {
	id, err := constants.ParseRoomID(roomID)
	if err != nil {
		return domain.RoomContext{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	calc, ok := r.calculators[id]
	if !ok {
		return domain.RoomContext{}, fmt.Errorf("registry: %q: %w", id, domain.ErrRoomNotFound)
	}
	return calc.room, nil
}

func (r *Registry) calculator(ctx context.Context, roomID string, register bool) (*Calculator, error) {
	id, err := constants.ParseRoomID(roomID)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	calc, ok := r.calculators[id]
	r.mu.RUnlock()
	if ok {
		return calc, nil
	}
	if !register {
		return nil, fmt.Errorf("registry: %q: %w", id, domain.ErrRoomNotFound)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if calc, ok = r.calculators[id]; ok {
		return calc, nil
	}
	calc = r.add(domain.NewRoomContext(id, r.cfg.DefaultVolumeM3))
	if r.logger != nil {
		r.logger.Printf(ctx, "registry: auto-registered room=%s volume_m3=%g", id, r.cfg.DefaultVolumeM3)
	}
	return calc, nil
}

// add must be called with mu held or before r is shared.
func (r *Registry) add(room domain.RoomContext) *Calculator {
	calc := NewCalculator(room, r.fitter, r.logger)
	r.calculators[room.ID] = calc
	r.order = append(r.order, room.ID)
	return calc
}

var _ domain.AirflowService = (*Registry)(nil)
