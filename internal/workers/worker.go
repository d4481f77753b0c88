package workers

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// runTimeout bounds a single worker run.
const runTimeout = 2 * time.Minute

// Worker is a periodic background job.
type Worker interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

// WorkerManager runs registered workers on their own tickers.
type WorkerManager struct {
	workers  []Worker
	log      logrus.FieldLogger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// NewWorkerManager creates an empty manager.
func NewWorkerManager(logger logrus.FieldLogger) *WorkerManager {
	return &WorkerManager{
		log:      logger.WithField("component", "workers"),
		stopChan: make(chan struct{}),
	}
}

// RegisterWorker adds w. Workers registered after Start are not run.
func (wm *WorkerManager) RegisterWorker(w Worker) {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	wm.workers = append(wm.workers, w)
	wm.log.WithFields(logrus.Fields{"worker": w.Name(), "interval": w.Interval()}).Info("worker registered")
}

// Start launches every registered worker.
func (wm *WorkerManager) Start() {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	for _, worker := range wm.workers {
		wm.wg.Add(1)
		go wm.runWorker(worker)
	}
	wm.log.WithField("count", len(wm.workers)).Info("workers started")
}

func (wm *WorkerManager) runWorker(w Worker) {
	defer wm.wg.Done()

	ticker := time.NewTicker(w.Interval())
	defer ticker.Stop()

	wm.executeWorker(w)

	for {
		select {
		case <-ticker.C:
			wm.executeWorker(w)
		case <-wm.stopChan:
			wm.log.WithField("worker", w.Name()).Debug("worker stopped")
			return
		}
	}
}

func (wm *WorkerManager) executeWorker(w Worker) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	start := time.Now()
	entry := wm.log.WithField("worker", w.Name())
	if err := w.Run(ctx); err != nil {
		entry.WithError(err).Warn("worker run failed")
		return
	}
	entry.WithField("duration", time.Since(start)).Debug("worker run finished")
}

// Stop signals every worker and waits for them to return.
func (wm *WorkerManager) Stop() {
	wm.stopOnce.Do(func() {
		close(wm.stopChan)
	})
	wm.wg.Wait()
}

// WorkerStats describes the registered workers.
type WorkerStats struct {
	TotalWorkers int
	WorkerNames  []string
}

// GetStats returns the registered workers.
func (wm *WorkerManager) GetStats() WorkerStats {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	names := make([]string, len(wm.workers))
	for i, w := range wm.workers {
		names[i] = w.Name()
	}

	return WorkerStats{
		TotalWorkers: len(wm.workers),
		WorkerNames:  names,
	}
}
