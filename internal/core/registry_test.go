package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRequiresNameAndModel(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.registry.Register(env.ctx, "  ", "MK4", nil, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.registry.Register(env.ctx, "P1", "", nil, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	id, err := env.registry.Register(env.ctx, "P1", "MK4", ValueMap{"build_height": Number(250)}, "rack A")
	require.NoError(t, err)

	p, err := env.registry.Get(env.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, string(PrinterAvailable), p.Status)
	assert.Nil(t, p.CurrentJobID)
	assert.JSONEq(t, `{"build_height":250}`, string(p.Capabilities))
}

func TestGetMissingPrinter(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.registry.Get(env.ctx, 99)
	assert.ErrorIs(t, err, ErrPrinterNotFound)
}

func TestFindCompatible(t *testing.T) {
	env := newTestEnv(t)
	first := env.printer(t, "A", ValueMap{"material": List("PLA", "PETG"), "build_height": Number(250)})
	env.printer(t, "B", ValueMap{"material": List("PLA"), "build_height": Number(300)})

	found, err := env.registry.FindCompatible(env.ctx, ValueMap{"material": String("PETG"), "build_height": Number(200)})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, first, found[0].ID)
}

func TestFindCompatibleSkipsUnavailable(t *testing.T) {
	env := newTestEnv(t)
	id := env.printer(t, "A", ValueMap{"material": List("PETG")})
	require.NoError(t, env.registry.SetStatus(env.ctx, id, PrinterOffline))

	found, err := env.registry.FindCompatible(env.ctx, ValueMap{"material": String("PETG")})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSetStatus(t *testing.T) {
	env := newTestEnv(t)
	id := env.printer(t, "A", nil)

	assert.ErrorIs(t, env.registry.SetStatus(env.ctx, id, PrinterBusy), ErrInvalidPrinterStatus)
	assert.ErrorIs(t, env.registry.SetStatus(env.ctx, id, "broken"), ErrInvalidPrinterStatus)
	assert.ErrorIs(t, env.registry.SetStatus(env.ctx, 99, PrinterOffline), ErrPrinterNotFound)

	require.NoError(t, env.registry.SetStatus(env.ctx, id, PrinterMaintenance))
	require.NoError(t, env.registry.SetStatus(env.ctx, id, PrinterMaintenance))

	p, err := env.registry.Get(env.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, string(PrinterMaintenance), p.Status)
}

func TestSetStatusRefusesPrinterWithJob(t *testing.T) {
	env := newTestEnv(t)
	id := env.printer(t, "A", nil)
	jobID, err := env.jobs.Create(env.ctx, env.enqueue(t, 42, 7, 5, nil), id, nil, "")
	require.NoError(t, err)

	assert.ErrorIs(t, env.registry.SetStatus(env.ctx, id, PrinterOffline), ErrPrinterBusy)
	assert.ErrorIs(t, env.registry.Remove(env.ctx, id), ErrPrinterBusy)
	assert.ErrorIs(t, env.registry.RegisterMaintenance(env.ctx, id, "nozzle swap"), ErrPrinterBusy)

	require.NoError(t, env.registry.SetCurrentJob(env.ctx, id, nil))
	require.NoError(t, env.registry.SetCurrentJob(env.ctx, id, &jobID))
	require.NoError(t, env.registry.SetCurrentJob(env.ctx, id, nil))
	require.NoError(t, env.registry.Remove(env.ctx, id))

	_, err = env.registry.Get(env.ctx, id)
	assert.ErrorIs(t, err, ErrPrinterNotFound)
}

func TestSetCurrentJobChecksJob(t *testing.T) {
	env := newTestEnv(t)
	a := env.printer(t, "A", nil)
	b := env.printer(t, "B", nil)
	jobID, err := env.jobs.Create(env.ctx, env.enqueue(t, 42, 7, 5, nil), a, nil, "")
	require.NoError(t, err)

	assert.ErrorIs(t, env.registry.SetCurrentJob(env.ctx, b, int64Ptr(999)), ErrJobNotFound)
	assert.ErrorIs(t, env.registry.SetCurrentJob(env.ctx, b, &jobID), ErrInvalidInput)
	assert.ErrorIs(t, env.registry.SetCurrentJob(env.ctx, 99, nil), ErrPrinterNotFound)

	p, err := env.registry.Get(env.ctx, b)
	require.NoError(t, err)
	assert.Equal(t, string(PrinterAvailable), p.Status)
	assert.Nil(t, p.CurrentJobID)
}

func TestUpdatePrinter(t *testing.T) {
	env := newTestEnv(t)
	id := env.printer(t, "A", nil)

	empty := ""
	_, err := env.registry.Update(env.ctx, id, PrinterUpdate{Name: &empty})
	assert.ErrorIs(t, err, ErrInvalidInput)

	name := "Bay 2"
	p, err := env.registry.Update(env.ctx, id, PrinterUpdate{
		Name:         &name,
		Capabilities: ValueMap{"material": List("ABS")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bay 2", p.Name)
	assert.Equal(t, "Prusa MK4", p.Model)
	assert.JSONEq(t, `{"material":["ABS"]}`, string(p.Capabilities))
}

func TestRegisterMaintenance(t *testing.T) {
	env := newTestEnv(t)
	id := env.printer(t, "A", nil)

	require.NoError(t, env.registry.RegisterMaintenance(env.ctx, id, "belt tension"))

	p, err := env.registry.Get(env.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, string(PrinterMaintenance), p.Status)
	require.NotNil(t, p.LastMaintenance)
	assert.WithinDuration(t, time.Now(), *p.LastMaintenance, time.Minute)
	assert.Contains(t, p.Notes, "Maintenance: belt tension")
}

func TestPrinterStatistics(t *testing.T) {
	env := newTestEnv(t)
	env.printer(t, "A", nil)
	id := env.printer(t, "B", nil)
	require.NoError(t, env.registry.SetStatus(env.ctx, id, PrinterOffline))

	stats, err := env.registry.Statistics(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.ByStatus["offline"])
	assert.Equal(t, int64(2), stats.ByModel["Prusa MK4"])
	assert.Zero(t, stats.TotalPrints)
}

func TestAppendNote(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, "[2024-03-01 09:30] first", appendNote("", "first", at))
	assert.Equal(t, "old\n[2024-03-01 09:30] second", appendNote("old", "second", at))
}
