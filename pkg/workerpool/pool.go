package workerpool

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Job is a unit of work. Jobs sharing a Key run on the same worker, in
// dispatch order.
type Job struct {
	Key     string
	Handler func(ctx context.Context) error
}

type Stats struct {
	NumWorkers      int   `json:"num_workers"`
	QueueSize       int   `json:"queue_size"`
	ActiveWorkers   int   `json:"active_workers"`
	TotalDispatched int64 `json:"total_dispatched"`
	TotalProcessed  int64 `json:"total_processed"`
	TotalDropped    int64 `json:"total_dropped"`
	TotalErrors     int64 `json:"total_errors"`
}

// Pool is a fixed set of workers with one bounded queue each.
type Pool struct {
	name       string
	numWorkers int
	queueSize  int
	workers    []*worker
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
	stopped    atomic.Bool

	totalDispatched atomic.Int64
	totalProcessed  atomic.Int64
	totalDropped    atomic.Int64
	totalErrors     atomic.Int64
}

type worker struct {
	id           int
	queue        chan Job
	isProcessing atomic.Bool
	pool         *Pool
}

func New(name string, numWorkers, queueSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 2
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Pool{
		name:       name,
		numWorkers: numWorkers,
		queueSize:  queueSize,
		workers:    make([]*worker, numWorkers),
	}
}

// Start launches the workers. Handlers receive ctx.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for i := 0; i < p.numWorkers; i++ {
			w := &worker{id: i, queue: make(chan Job, p.queueSize), pool: p}
			p.workers[i] = w
			p.wg.Add(1)
			go w.run(ctx, &p.wg)
		}
		logrus.Infof("[%s] started %d workers, queue size %d", p.name, p.numWorkers, p.queueSize)
	})
}

// TryDispatch enqueues without blocking and reports whether the job was
// accepted.
func (p *Pool) TryDispatch(job Job) (ok bool) {
	if p.stopped.Load() || p.workers[0] == nil {
		p.totalDropped.Add(1)
		return false
	}
	shard := p.shard(job.Key)
	p.totalDispatched.Add(1)

	defer func() {
		// send on a queue closed by a concurrent Stop
		if r := recover(); r != nil {
			ok = false
		}
		if !ok {
			p.totalDropped.Add(1)
			logrus.Warnf("[%s] worker %d queue full or stopped, dropping job %s", p.name, shard, job.Key)
		}
	}()
	select {
	case p.workers[shard].queue <- job:
		return true
	default:
		return false
	}
}

func (p *Pool) Dispatch(job Job) {
	_ = p.TryDispatch(job)
}

// Stop closes the queues and waits until every accepted job has run.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		for _, w := range p.workers {
			if w != nil {
				close(w.queue)
			}
		}
		p.wg.Wait()
		logrus.Debugf("[%s] all workers stopped", p.name)
	})
}

func (p *Pool) shard(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(p.numWorkers))
}

func (p *Pool) Stats() Stats {
	active := 0
	for _, w := range p.workers {
		if w != nil && w.isProcessing.Load() {
			active++
		}
	}
	return Stats{
		NumWorkers:      p.numWorkers,
		QueueSize:       p.queueSize,
		ActiveWorkers:   active,
		TotalDispatched: p.totalDispatched.Load(),
		TotalProcessed:  p.totalProcessed.Load(),
		TotalDropped:    p.totalDropped.Load(),
		TotalErrors:     p.totalErrors.Load(),
	}
}

func (w *worker) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for job := range w.queue {
		w.handle(ctx, job)
	}
}

func (w *worker) handle(ctx context.Context, job Job) {
	w.isProcessing.Store(true)
	defer func() {
		if r := recover(); r != nil {
			w.pool.totalErrors.Add(1)
			logrus.Errorf("[%s] worker %d panic for %s: %v", w.pool.name, w.id, job.Key, r)
		}
		w.isProcessing.Store(false)
		w.pool.totalProcessed.Add(1)
	}()
	if err := job.Handler(ctx); err != nil {
		w.pool.totalErrors.Add(1)
		logrus.WithError(err).Errorf("[%s] worker %d job %s failed", w.pool.name, w.id, job.Key)
	}
}
