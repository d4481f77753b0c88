package workers

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carecircle/internal/models"
)

type countingWorker struct {
	runs atomic.Int32
	err  error
}

func (w *countingWorker) Name() string            { return "counting" }
func (w *countingWorker) Interval() time.Duration { return 10 * time.Millisecond }
func (w *countingWorker) Run(context.Context) error {
	w.runs.Add(1)
	return w.err
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestWorkerManagerRunsUntilStopped(t *testing.T) {
	wm := NewWorkerManager(quietLogger())
	ok := &countingWorker{}
	failing := &countingWorker{err: errors.New("boom")}
	wm.RegisterWorker(ok)
	wm.RegisterWorker(failing)

	wm.Start()
	require.Eventually(t, func() bool {
		return ok.runs.Load() >= 3 && failing.runs.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)
	wm.Stop()
	wm.Stop()

	after := ok.runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, ok.runs.Load())
	assert.Equal(t, 2, wm.GetStats().TotalWorkers)
}

type fakeGigs struct{ calls int }

func (f *fakeGigs) FetchGigs(context.Context) []models.Gig {
	f.calls++
	return nil
}

type fakeExpirer struct{ err error }

func (f fakeExpirer) ExpirePending(context.Context) (int64, error) { return 2, f.err }

func TestJobs(t *testing.T) {
	gigs := &fakeGigs{}
	poll := NewGigPollWorker(gigs, time.Minute)
	require.NoError(t, poll.Run(context.Background()))
	assert.Equal(t, 1, gigs.calls)
	assert.Equal(t, "gig-poll", poll.Name())

	assert.NoError(t, NewPaymeExpiryWorker(fakeExpirer{}, quietLogger()).Run(context.Background()))
	assert.Error(t, NewPaymeExpiryWorker(fakeExpirer{err: errors.New("db down")}, quietLogger()).Run(context.Background()))
}
