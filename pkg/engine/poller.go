package engine

import (
	"context"
	"log"
	"sync"
	"time"
)

const defaultBatchLimit = 64

// Poller drives evaluation cycles. Each tick it collects jobs whose
// interval has elapsed and fans them out to a bounded worker pool.
// Per-job mutual exclusion is the Engine's concern; the poller only
// supplies the timer the engine deliberately does not own.
type Poller struct {
	engine   *Engine
	interval time.Duration
	workers  int
	batch    int
}

// NewPoller creates a poller ticking at the given interval with the
// given number of concurrent evaluation workers.
func NewPoller(e *Engine, interval time.Duration, workers int) *Poller {
	if workers < 1 {
		workers = 1
	}
	return &Poller{
		engine:   e,
		interval: interval,
		workers:  workers,
		batch:    defaultBatchLimit,
	}
}

// Start begins the polling loop and blocks until the context is
// cancelled.
func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log.Println("Poller started")

	for {
		select {
		case <-ctx.Done():
			log.Println("Poller stopping due to context cancellation")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick evaluates every due job, at most workers at a time.
func (p *Poller) tick(ctx context.Context) {
	now := p.engine.now().UTC()
	jobs, err := p.engine.store.DueJobs(ctx, now, p.batch)
	if err != nil {
		log.Printf("Failed to query due jobs: %v", err)
		return
	}
	if len(jobs) == 0 {
		p.refreshGauge(ctx)
		return
	}

	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup
	for _, job := range jobs {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(jobID string) {
			defer wg.Done()
			defer func() { <-sem }()
			out, err := p.engine.Evaluate(ctx, jobID)
			if err != nil {
				log.Printf("Evaluation failed for job %s: %v", jobID, err)
				return
			}
			if out.Kind != OutcomePending && out.Kind != OutcomeBusy {
				log.Printf("Job %s: %s", jobID, out.Kind)
			}
		}(job.ID)
	}
	wg.Wait()
	p.refreshGauge(ctx)
}

func (p *Poller) refreshGauge(ctx context.Context) {
	active, err := p.engine.store.ActiveJobs(ctx)
	if err != nil {
		return
	}
	ActiveJobs.Set(float64(len(active)))
}
