package core

import (
	"context"
	"sync"

	"airflow-service/app/src/domain"
	"airflow-service/app/src/infra"
)

// WorkerPool records incoming reading batches through the airflow service.
type WorkerPool struct {
	service     domain.AirflowService
	workerCount int
	logger      Logger
}

func NewWorkerPool(workerCount int, service domain.AirflowService, logger Logger) *WorkerPool {
	if workerCount < 0 {
		workerCount = 0
	}
	return &WorkerPool{service: service, workerCount: workerCount, logger: logger}
}

// Run blocks until batches is closed or ctx is cancelled. With zero workers the
// channel is drained and nothing is recorded.
func (p *WorkerPool) Run(ctx context.Context, batches <-chan domain.ReadingBatch) {
	if p.workerCount == 0 {
		p.drainUntilClosed(ctx, batches)
		return
	}

	var wg sync.WaitGroup
	wg.Add(p.workerCount)

	for i := 0; i < p.workerCount; i++ {
		go func() {
			infra.WorkerStarted()
			defer wg.Done()
			defer infra.WorkerFinished()
			p.workerLoop(ctx, batches)
		}()
	}
	wg.Wait()
}

func (p *WorkerPool) workerLoop(ctx context.Context, batches <-chan domain.ReadingBatch) {
	for {
		select {
		case <-ctx.Done():
			p.log(ctx, "worker: context cancelled: %v", ctx.Err())
			return
		case batch, ok := <-batches:
			if !ok {
				return
			}
			p.processBatch(ctx, batch)
		}
	}
}

func (p *WorkerPool) processBatch(ctx context.Context, batch domain.ReadingBatch) {
	if len(batch.Measurements) == 0 {
		return
	}

	for i, m := range batch.Measurements {
		if ctx.Err() != nil {
			p.log(ctx, "worker: aborting batch %s after %d readings: %v", batch.ID, i, ctx.Err())
			return
		}
		if err := p.service.RecordMeasurement(ctx, batch.RoomID, m); err != nil {
			p.errorf(ctx, "worker: failed to record batch=%s room=%s dropped=%d: %v",
				batch.ID, batch.RoomID, len(batch.Measurements)-i, err)
			return
		}
	}

	if p.logger != nil {
		p.logger.Debugf(ctx, "worker: recorded batch=%s room=%s readings=%d", batch.ID, batch.RoomID, len(batch.Measurements))
	}
}

func (p *WorkerPool) drainUntilClosed(ctx context.Context, batches <-chan domain.ReadingBatch) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-batches:
			if !ok {
				return
			}
		}
	}
}

func (p *WorkerPool) log(ctx context.Context, format string, v ...any) {
	if p.logger != nil {
		p.logger.Printf(ctx, format, v...)
	}
}

func (p *WorkerPool) errorf(ctx context.Context, format string, v ...any) {
	if p.logger != nil {
		p.logger.Errorf(ctx, format, v...)
	}
}

var _ domain.IngestPool = (*WorkerPool)(nil)
