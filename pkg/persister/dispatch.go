package persister

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/netsage-project/tscore/internal/log"
)

// Dispatcher routes each series to exactly one of a fixed pool of worker
// goroutines, so rate derivation and aggregation for a given series are
// strictly serialized while distinct series proceed in parallel.
type Dispatcher struct {
	p       *Persister
	workers []chan Sample
	wg      sync.WaitGroup
	log     *log.Logger
}

// NewDispatcher prepares n workers feeding p.Ingest; Run starts them. Each
// worker has its own bounded channel of depth queueDepth.
func NewDispatcher(p *Persister, n, queueDepth int, logger *log.Logger) *Dispatcher {
	if n <= 0 {
		n = 1
	}
	d := &Dispatcher{p: p, workers: make([]chan Sample, n), log: logger.With("dispatcher")}
	for i := range d.workers {
		d.workers[i] = make(chan Sample, queueDepth)
	}
	return d
}

// Run starts the worker loops and returns immediately. Once ctx is
// cancelled, every worker drains its queue, flushes the store, and exits;
// Wait blocks until that has happened.
func (d *Dispatcher) Run(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.worker(ctx, i, ch)
	}
}

func (d *Dispatcher) worker(ctx context.Context, idx int, ch chan Sample) {
	defer d.wg.Done()
	for {
		select {
		case s := <-ch:
			if err := d.p.Ingest(ctx, s); err != nil {
				d.log.Errorf("worker %d: ingest failed for %v: %v", idx, s.Path, err)
			}
		case <-ctx.Done():
			// Drain whatever is already queued before flushing and
			// exiting, so no sample is left with raw inserted but its
			// rate increment never issued.
			for {
				select {
				case s := <-ch:
					if err := d.p.Ingest(context.Background(), s); err != nil {
						d.log.Errorf("worker %d: drain ingest failed for %v: %v", idx, s.Path, err)
					}
				default:
					if err := d.p.Flush(context.Background()); err != nil {
						d.log.Errorf("worker %d: flush on shutdown failed: %v", idx, err)
					}
					return
				}
			}
		}
	}
}

// Dispatch routes s to its series' worker by hashing (path, freq).
// Blocks if that worker's queue is full, applying backpressure to the
// ingestion transport rather than dropping samples.
func (d *Dispatcher) Dispatch(ctx context.Context, s Sample) error {
	idx := d.workerFor(s)
	select {
	case d.workers[idx] <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) workerFor(s Sample) int {
	h := fnv.New32a()
	for _, p := range s.Path {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	var freqBuf [8]byte
	for i := range freqBuf {
		freqBuf[i] = byte(s.Freq >> (8 * i))
	}
	h.Write(freqBuf[:])
	return int(h.Sum32()) % len(d.workers)
}

// Wait blocks until every worker has exited after Run's ctx was cancelled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
