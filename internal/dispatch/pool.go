package dispatch

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/notify-engine/internal/config"
	"github.com/ignite/notify-engine/internal/notification"
)

// Queue is the subset of the queue store the pool needs.
type Queue interface {
	ClaimBatch(ctx context.Context, workerID string, limit int) ([]*notification.QueueRecord, error)
	MarkSent(ctx context.Context, id string) error
	MarkRetrying(ctx context.Context, id, errMsg string, nextAttempt time.Time) error
	MarkFailed(ctx context.Context, id, errMsg string) error
}

// Registry tracks worker liveness. Optional.
type Registry interface {
	Heartbeat(ctx context.Context, workerID, hostname string) error
	Deregister(ctx context.Context, workerID string) error
}

// Pool runs N claim-process-persist loops against the queue.
type Pool struct {
	queue      Queue
	dispatcher *Dispatcher
	registry   Registry // nil disables heartbeats
	cfg        config.WorkerConfig

	workerID string
	wg       sync.WaitGroup
}

// NewPool creates a worker pool. registry may be nil.
func NewPool(queue Queue, dispatcher *Dispatcher, registry Registry, cfg config.WorkerConfig) *Pool {
	hostname, _ := os.Hostname()
	return &Pool{
		queue:      queue,
		dispatcher: dispatcher,
		registry:   registry,
		cfg:        cfg,
		workerID:   fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8]),
	}
}

// WorkerID returns the pool's claim identity.
func (p *Pool) WorkerID() string {
	return p.workerID
}

// Run starts the loops and blocks until ctx is cancelled and all in-flight
// records are persisted.
func (p *Pool) Run(ctx context.Context) {
	log.Printf("[Pool] starting %d workers as %s", p.cfg.NumWorkers, p.workerID)

	if p.registry != nil {
		p.wg.Add(1)
		go p.heartbeatLoop(ctx)
	}

	for i := 0; i < p.cfg.NumWorkers; i++ {
		p.wg.Add(1)
		go p.workerLoop(ctx, i)
	}
	p.wg.Wait()

	if p.registry != nil {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.registry.Deregister(cleanupCtx, p.workerID); err != nil {
			log.Printf("[Pool] deregister failed: %v", err)
		}
	}
	log.Printf("[Pool] stopped")
}

func (p *Pool) heartbeatLoop(ctx context.Context) {
	defer p.wg.Done()

	hostname, _ := os.Hostname()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		if err := p.registry.Heartbeat(ctx, p.workerID, hostname); err != nil && ctx.Err() == nil {
			log.Printf("[Pool] heartbeat failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Pool) workerLoop(ctx context.Context, workerNum int) {
	defer p.wg.Done()

	pollInterval := time.Duration(p.cfg.PollIntervalMS) * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		records, err := p.queue.ClaimBatch(ctx, p.workerID, p.cfg.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Worker %d] claim error: %v", workerNum, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		if len(records) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		for _, rec := range records {
			p.processOne(ctx, workerNum, rec)
		}
	}
}

// processOne runs the dispatcher and persists the resulting transition. The
// persist uses a background-derived context so a shutdown mid-record still
// records the outcome instead of stranding the claim.
func (p *Pool) processOne(ctx context.Context, workerNum int, rec *notification.QueueRecord) {
	outcome := p.dispatcher.Process(ctx, rec)

	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch outcome.Status {
	case notification.StatusSent:
		err = p.queue.MarkSent(persistCtx, rec.ID)
	case notification.StatusRetrying:
		err = p.queue.MarkRetrying(persistCtx, rec.ID, outcome.ErrorMessage, outcome.NextAttempt)
	case notification.StatusFailed:
		err = p.queue.MarkFailed(persistCtx, rec.ID, outcome.ErrorMessage)
	default:
		err = fmt.Errorf("unexpected outcome status %s", outcome.Status)
	}
	if err != nil {
		log.Printf("[Worker %d] persist error for %s: %v", workerNum, rec.ID, err)
		return
	}

	if outcome.Status == notification.StatusFailed {
		log.Printf("[Worker %d] notification %s failed after %d retries: %s",
			workerNum, rec.ID, rec.RetryCount, outcome.ErrorMessage)
	}
}
