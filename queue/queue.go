package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ErrQueueFull = errors.New("dispatch queue is full")
	ErrStopped   = errors.New("dispatcher stopped")
)

// Job is one unit of outbound work, such as a redirect reply.
type Job struct {
	Branch string
	Run    func(ctx context.Context) error
	// Done, when set, receives the result of Run.
	Done func(err error)
}

// Dispatcher runs jobs off the caller's goroutine with a bounded backlog, so
// that slow sends never stall a branch's event loop.
type Dispatcher struct {
	jobs       chan Job
	workerPool *WorkerPool
	timeout    time.Duration
	metrics    *dispatchMetrics

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
	closed bool
	loop   sync.WaitGroup
}

type dispatchMetrics struct {
	queueLength    prometheus.Gauge
	processingTime prometheus.Observer
	processed      *prometheus.CounterVec
}

var (
	queueLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatch_queue_length",
		Help: "Jobs waiting for a worker",
	}, []string{"queue"})
	processingTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_processing_time_seconds",
		Help:    "Time taken to run a job",
		Buckets: prometheus.DefBuckets,
	}, []string{"queue"})
	processed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_jobs_total",
		Help: "Jobs run by result",
	}, []string{"queue", "branch", "result"})
)

// NewDispatcher starts a dispatcher named name with numWorkers concurrent
// jobs, a backlog of backlog jobs and a per-job timeout.
func NewDispatcher(name string, numWorkers, backlog int, timeout time.Duration) *Dispatcher {
	if backlog <= 0 {
		backlog = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		jobs:       make(chan Job, backlog),
		workerPool: NewWorkerPool(numWorkers),
		timeout:    timeout,
		metrics: &dispatchMetrics{
			queueLength:    queueLength.WithLabelValues(name),
			processingTime: processingTime.WithLabelValues(name),
			processed:      processed.MustCurryWith(prometheus.Labels{"queue": name}),
		},
		ctx:    ctx,
		cancel: cancel,
	}

	d.loop.Add(1)
	go d.run()
	return d
}

// Enqueue adds job to the backlog without blocking.
func (d *Dispatcher) Enqueue(job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrStopped
	}

	select {
	case d.jobs <- job:
		d.metrics.queueLength.Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) run() {
	defer d.loop.Done()
	for job := range d.jobs {
		d.metrics.queueLength.Dec()
		d.workerPool.Submit(func() { d.process(job) })
	}
}

func (d *Dispatcher) process(job Job) {
	start := time.Now()
	ctx := d.ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	err := job.Run(ctx)
	d.metrics.processingTime.Observe(time.Since(start).Seconds())

	result := "ok"
	if err != nil {
		result = "error"
	}
	d.metrics.processed.WithLabelValues(job.Branch, result).Inc()

	if job.Done != nil {
		job.Done(err)
	}
}

// Stop rejects new jobs, drains the backlog and waits for running jobs. Jobs
// still running when ctx is done have their context cancelled.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.loop.Wait()
		d.workerPool.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		d.cancel()
		<-done
	}
	d.cancel()
}
