package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orrn/printfarm/internal/db"
	"github.com/orrn/printfarm/internal/logging"
)

// Registry is the catalog of physical printers. The busy flag and current job
// pointer belong to the job lifecycle; operators may only move a printer
// between the other statuses while it is idle.
type Registry struct {
	store *db.Store
	log   *logrus.Entry
}

func NewRegistry(store *db.Store) *Registry {
	return &Registry{
		store: store,
		log:   logging.Component("registry"),
	}
}

func (r *Registry) Register(ctx context.Context, name, model string, caps ValueMap, notes string) (int64, error) {
	name = strings.TrimSpace(name)
	model = strings.TrimSpace(model)
	if name == "" || model == "" {
		return 0, fmt.Errorf("%w: name and model are required", ErrInvalidInput)
	}

	p := &db.Printer{
		Name:         name,
		Model:        model,
		Status:       string(PrinterAvailable),
		Capabilities: caps.JSON(),
		Notes:        notes,
	}
	if err := r.store.Printers.CreatePrinter(ctx, p); err != nil {
		r.log.WithError(err).WithField("name", name).Error("register printer")
		return 0, err
	}

	r.log.WithFields(logrus.Fields{"printer_id": p.ID, "name": name, "model": model}).Info("printer registered")
	return p.ID, nil
}

func (r *Registry) Get(ctx context.Context, id int64) (*db.Printer, error) {
	return getPrinter(ctx, r.store, id)
}

func getPrinter(ctx context.Context, store *db.Store, id int64) (*db.Printer, error) {
	p, err := store.Printers.GetPrinterByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPrinterNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *Registry) List(ctx context.Context, status string) ([]*db.Printer, error) {
	if status != "" && !PrinterStatus(status).Valid() {
		return nil, ErrInvalidPrinterStatus
	}
	return r.store.Printers.ListPrinters(ctx, status)
}

// Update applies the non-nil fields of u.
func (r *Registry) Update(ctx context.Context, id int64, u PrinterUpdate) (*db.Printer, error) {
	p, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if u.Name != nil {
		if strings.TrimSpace(*u.Name) == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
		}
		p.Name = strings.TrimSpace(*u.Name)
	}
	if u.Model != nil {
		if strings.TrimSpace(*u.Model) == "" {
			return nil, fmt.Errorf("%w: model cannot be empty", ErrInvalidInput)
		}
		p.Model = strings.TrimSpace(*u.Model)
	}
	if u.Capabilities != nil {
		p.Capabilities = u.Capabilities.JSON()
	}
	if u.Notes != nil {
		p.Notes = *u.Notes
	}

	if err := r.store.Printers.UpdatePrinter(ctx, p); err != nil {
		r.log.WithError(err).WithField("printer_id", id).Error("update printer")
		return nil, err
	}
	return p, nil
}

func (r *Registry) SetStatus(ctx context.Context, id int64, status PrinterStatus) error {
	if !status.Valid() {
		return ErrInvalidPrinterStatus
	}
	if status == PrinterBusy {
		return fmt.Errorf("%w: busy is set by print jobs", ErrInvalidPrinterStatus)
	}

	p, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.CurrentJobID != nil {
		return ErrPrinterBusy
	}
	if p.Status == string(status) {
		return nil
	}

	ok, err := r.store.Printers.UpdatePrinterStatus(ctx, id, string(status))
	if err != nil {
		r.log.WithError(err).WithField("printer_id", id).Error("set printer status")
		return err
	}
	if !ok {
		return ErrPrinterBusy
	}

	r.log.WithFields(logrus.Fields{
		"printer_id": id,
		"old_status": p.Status,
		"new_status": status,
	}).Info("printer status changed")
	return nil
}

// SetCurrentJob attaches jobID to the printer and marks it busy, or detaches
// the current job and marks it available when jobID is nil. It is meant for
// job lifecycle repair; the attached job must exist and target this printer.
func (r *Registry) SetCurrentJob(ctx context.Context, id int64, jobID *int64) error {
	return r.store.InTx(ctx, func(tx *db.Store) error {
		if _, err := getPrinter(ctx, tx, id); err != nil {
			return err
		}
		if jobID != nil {
			job, err := getJob(ctx, tx, *jobID)
			if err != nil {
				return err
			}
			if job.PrinterID != id {
				return fmt.Errorf("%w: job %d targets printer %d", ErrInvalidInput, job.ID, job.PrinterID)
			}
		}
		return tx.Printers.SetCurrentJob(ctx, id, jobID)
	})
}

func (r *Registry) FindAvailable(ctx context.Context) ([]*db.Printer, error) {
	return r.store.Printers.ListPrinters(ctx, string(PrinterAvailable))
}

// FindCompatible filters the available printers down to those whose
// capabilities satisfy every required key. Registry order is kept.
func (r *Registry) FindCompatible(ctx context.Context, required ValueMap) ([]*db.Printer, error) {
	printers, err := r.FindAvailable(ctx)
	if err != nil {
		return nil, err
	}

	var compatible []*db.Printer
	for _, p := range printers {
		caps, err := ParseValueMap(p.Capabilities)
		if err != nil {
			r.log.WithError(err).WithField("printer_id", p.ID).Warn("skipping printer with unreadable capabilities")
			continue
		}
		if caps.Satisfies(required) {
			compatible = append(compatible, p)
		}
	}
	return compatible, nil
}

// Remove deletes an idle printer. A busy printer is left untouched.
func (r *Registry) Remove(ctx context.Context, id int64) error {
	p, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.Status == string(PrinterBusy) {
		r.log.WithField("printer_id", id).Warn("refusing to remove busy printer")
		return ErrPrinterBusy
	}

	ok, err := r.store.Printers.DeletePrinter(ctx, id)
	if err != nil {
		r.log.WithError(err).WithField("printer_id", id).Error("remove printer")
		return err
	}
	if !ok {
		return ErrPrinterBusy
	}
	return nil
}

func (r *Registry) RegisterMaintenance(ctx context.Context, id int64, notes string) error {
	p, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.CurrentJobID != nil {
		return ErrPrinterBusy
	}

	at := time.Now().UTC()
	entry := "Maintenance"
	if notes != "" {
		entry += ": " + notes
	}

	ok, err := r.store.Printers.RegisterMaintenance(ctx, id, appendNote(p.Notes, entry, at), at)
	if err != nil {
		r.log.WithError(err).WithField("printer_id", id).Error("register maintenance")
		return err
	}
	if !ok {
		return ErrPrinterBusy
	}
	return nil
}

func (r *Registry) Statistics(ctx context.Context) (*PrinterStats, error) {
	byStatus, err := r.store.Printers.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	byModel, err := r.store.Printers.CountByModel(ctx)
	if err != nil {
		return nil, err
	}
	jobs, err := r.store.Jobs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	stats := &PrinterStats{
		ByStatus:    byStatus,
		ByModel:     byModel,
		TotalPrints: jobs[string(JobCompleted)],
	}
	for _, n := range byStatus {
		stats.Total += n
	}
	if stats.Total > 0 {
		stats.AvgPrintsPerPrinter = float64(stats.TotalPrints) / float64(stats.Total)
	}
	return stats, nil
}

// appendNote adds a timestamped line to a free-text notes column.
func appendNote(existing, note string, at time.Time) string {
	line := fmt.Sprintf("[%s] %s", at.Format("2006-01-02 15:04"), note)
	if existing == "" {
		return line
	}
	return existing + "\n" + line
}
