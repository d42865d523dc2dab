package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/printfarm/internal/db"
)

func TestConcurrentCreateHasOneWinner(t *testing.T) {
	env := newTestEnv(t)
	a := env.printer(t, "A", nil)
	b := env.printer(t, "B", nil)
	queueID := env.enqueue(t, 42, 7, 5, nil)

	const workers = 20
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		printerID := a
		if i%2 == 1 {
			printerID = b
		}
		wg.Add(1)
		go func(i int, printerID int64) {
			defer wg.Done()
			_, errs[i] = env.jobs.Create(env.ctx, queueID, printerID, nil, "")
		}(i, printerID)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t,
			errors.Is(err, ErrJobExists) || errors.Is(err, ErrPrinterUnavailable) ||
				errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrConcurrentUpdate),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, wins)

	job, err := env.jobs.GetByQueueID(env.ctx, queueID)
	require.NoError(t, err)

	busy := 0
	for _, id := range []int64{a, b} {
		p, err := env.registry.Get(env.ctx, id)
		require.NoError(t, err)
		if p.Status == string(PrinterBusy) {
			busy++
			require.NotNil(t, p.CurrentJobID)
			assert.Equal(t, job.ID, *p.CurrentJobID)
			assert.Equal(t, job.PrinterID, id)
		} else {
			assert.Nil(t, p.CurrentJobID)
		}
	}
	assert.Equal(t, 1, busy)

	entry, err := env.queue.Get(env.ctx, queueID)
	require.NoError(t, err)
	assert.Equal(t, string(QueueAssigned), entry.Status)
}

func TestConcurrentJobTransitionsReleasePrinterOnce(t *testing.T) {
	env := newTestEnv(t)
	printerID := env.printer(t, "A", nil)
	jobID, err := env.jobs.Create(env.ctx, env.enqueue(t, 42, 7, 5, nil), printerID, nil, "")
	require.NoError(t, err)
	require.NoError(t, env.jobs.UpdateStatus(env.ctx, jobID, JobPrinting, ""))

	const workers = 40
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		to := JobCompleted
		if i%2 == 1 {
			to = JobPostProcessing
		}
		wg.Add(1)
		go func(i int, to JobStatus) {
			defer wg.Done()
			errs[i] = env.jobs.UpdateStatus(env.ctx, jobID, to, "")
		}(i, to)
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		assert.Equal(t, 1, i%2, "completed should never lose: %v", err)
		assert.True(t, errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrConcurrentUpdate),
			"unexpected error: %v", err)
	}

	job, err := env.jobs.Get(env.ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, string(JobCompleted), job.Status)

	p, err := env.registry.Get(env.ctx, printerID)
	require.NoError(t, err)
	assert.Equal(t, string(PrinterAvailable), p.Status)
	assert.Nil(t, p.CurrentJobID)
}

func TestStaleQueueWriteLoses(t *testing.T) {
	env := newTestEnv(t)
	id := env.enqueue(t, 42, 7, 5, nil)

	stale, err := env.queue.Get(env.ctx, id)
	require.NoError(t, err)
	require.NoError(t, env.queue.UpdateStatus(env.ctx, id, QueueCancelled, nil, ""))

	history, err := env.queue.History(env.ctx, id)
	require.NoError(t, err)
	before := len(history)

	err = env.store.InTx(env.ctx, func(tx *db.Store) error {
		ok, err := tx.Queue.UpdateStatus(env.ctx, id, stale.Status, string(QueueAssigned), stale.Notes)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = transitionQueue(env.ctx, tx, stale, QueueAssigned, nil, "")
		return err
	})
	assert.ErrorIs(t, err, ErrConcurrentUpdate)

	e, err := env.queue.Get(env.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, string(QueueCancelled), e.Status)

	history, err = env.queue.History(env.ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, before)

	// A fresh read sees the cancellation and is refused by the table.
	err = env.queue.UpdateStatus(env.ctx, id, QueueAssigned, nil, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
