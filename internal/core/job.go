package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orrn/printfarm/internal/db"
	"github.com/orrn/printfarm/internal/logging"
	"github.com/orrn/printfarm/internal/notify"
)

// SettingEstimatedTimeBuffer is the settings key holding the percentage added
// to the sliced print time when a job starts printing.
const SettingEstimatedTimeBuffer = "estimated_time_buffer"

const defaultTimeBuffer = 10

// Jobs owns the execution lifecycle of a queue entry on one printer, and with
// it the printer's busy flag.
type Jobs struct {
	store         *db.Store
	notifier      Notifier
	defaultBuffer float64
	log           *logrus.Entry
}

// NewJobs returns the job service. defaultBuffer is used when the settings
// table holds no estimated_time_buffer; a negative value means 10 percent.
func NewJobs(store *db.Store, notifier Notifier, defaultBuffer float64) *Jobs {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if defaultBuffer < 0 {
		defaultBuffer = defaultTimeBuffer
	}
	return &Jobs{
		store:         store,
		notifier:      notifier,
		defaultBuffer: defaultBuffer,
		log:           logging.Component("jobs"),
	}
}

func (j *Jobs) Create(ctx context.Context, queueID, printerID int64, scheduledStart *time.Time, notes string) (int64, error) {
	job := &db.PrintJob{
		QueueID:   queueID,
		PrinterID: printerID,
		Status:    string(JobPending),
	}

	var entry *db.QueueEntry
	var printer *db.Printer
	err := j.store.InTx(ctx, func(tx *db.Store) error {
		var err error
		if entry, err = getQueueEntry(ctx, tx, queueID); err != nil {
			return err
		}
		if printer, err = getPrinter(ctx, tx, printerID); err != nil {
			return err
		}

		_, err = tx.Jobs.GetJobByQueueID(ctx, queueID)
		if err == nil {
			return ErrJobExists
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if printer.Status != string(PrinterAvailable) || printer.CurrentJobID != nil {
			return ErrPrinterUnavailable
		}
		if !CanQueueTransition(QueueStatus(entry.Status), QueueAssigned) {
			return fmt.Errorf("%w: queue entry is %s", ErrInvalidTransition, entry.Status)
		}

		if scheduledStart != nil {
			start := scheduledStart.UTC()
			job.ScheduledStartTime = &start
			if hours, ok := estimatedHours(entry); ok {
				end := start.Add(bufferedDuration(hours, 0))
				job.EstimatedEndTime = &end
			}
		}
		if notes != "" {
			job.Notes = appendNote("", notes, time.Now().UTC())
		}

		if err := tx.Jobs.CreateJob(ctx, job); err != nil {
			return err
		}
		if _, err := transitionQueue(ctx, tx, entry, QueueAssigned, nil,
			fmt.Sprintf("Assigned to printer %s", printer.Name)); err != nil {
			return err
		}

		ok, err := tx.Printers.AcquirePrinter(ctx, printerID, job.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPrinterUnavailable
		}
		return nil
	})
	if err != nil {
		logFailure(j.log, err, "create print job", logrus.Fields{"queue_id": queueID, "printer_id": printerID})
		return 0, err
	}

	j.log.WithFields(logrus.Fields{
		"job_id":     job.ID,
		"queue_id":   queueID,
		"printer_id": printerID,
	}).Info("print job created")

	message := fmt.Sprintf("Print request #%d was assigned to printer %s.", queueID, printer.Name)
	if job.ScheduledStartTime != nil {
		message += fmt.Sprintf(" Scheduled start: %s.", job.ScheduledStartTime.Format(time.RFC1123))
	}
	j.notifier.Notify(&notify.Notification{
		Event:       notify.EventJobCreated,
		UserID:      entry.UserID,
		Title:       "Your model was scheduled for printing",
		Message:     message,
		Type:        notify.TypeInfo,
		RelatedType: "print_job",
		RelatedID:   job.ID,
	})
	return job.ID, nil
}

func (j *Jobs) Get(ctx context.Context, id int64) (*db.PrintJob, error) {
	return getJob(ctx, j.store, id)
}

func getJob(ctx context.Context, store *db.Store, id int64) (*db.PrintJob, error) {
	job, err := store.Jobs.GetJobByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (j *Jobs) GetByQueueID(ctx context.Context, queueID int64) (*db.PrintJob, error) {
	job, err := j.store.Jobs.GetJobByQueueID(ctx, queueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

type jobEffect int

const (
	effectReleasePrinter jobEffect = iota + 1
	effectAcquirePrinter
)

// jobPlan is the outcome of a status change before anything is written: the
// new row and the printer commands that go with it.
type jobPlan struct {
	next    db.PrintJob
	effects []jobEffect
	changed bool
}

// planJobTransition computes the row that results from moving job to status
// at now. hours is the sliced print time, zero when unknown.
func planJobTransition(job *db.PrintJob, to JobStatus, notes string, hours, buffer float64, now time.Time) (*jobPlan, error) {
	from := JobStatus(job.Status)
	if !CanJobTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	plan := &jobPlan{next: *job}
	if from == to {
		return plan, nil
	}
	plan.changed = true

	next := &plan.next
	next.Status = string(to)
	if notes != "" {
		next.Notes = appendNote(job.Notes, notes, now)
	}

	switch {
	case to == JobPrinting && next.StartTime == nil:
		start := now
		next.StartTime = &start
		if hours > 0 {
			end := now.Add(bufferedDuration(hours, buffer))
			next.EstimatedEndTime = &end
		}
	case to.Terminal():
		end := now
		next.ActualEndTime = &end
		if to == JobCompleted {
			next.Progress = 100
		}
		if !from.Terminal() {
			plan.effects = append(plan.effects, effectReleasePrinter)
		}
	case from == JobFailed && to == JobPending:
		next.StartTime = nil
		next.EstimatedEndTime = nil
		next.ActualEndTime = nil
		next.Progress = 0
		plan.effects = append(plan.effects, effectAcquirePrinter)
	}
	return plan, nil
}

// bufferedDuration pads hours by buffer percent and rounds up to the minute.
// The padded time is settled to whole seconds first so float noise cannot
// add a minute.
func bufferedDuration(hours, buffer float64) time.Duration {
	seconds := math.Round(hours * (100 + buffer) * 36)
	minutes := math.Ceil(seconds / 60)
	return time.Duration(minutes) * time.Minute
}

func estimatedHours(entry *db.QueueEntry) (float64, bool) {
	if entry == nil || len(entry.PrintSettings) == 0 {
		return 0, false
	}
	settings, err := ParseValueMap(entry.PrintSettings)
	if err != nil {
		return 0, false
	}
	hours, ok := settings.Number("estimated_print_time_hours")
	if !ok || hours <= 0 {
		return 0, false
	}
	return hours, true
}

// timeBuffer reads the operator setting, falling back to the configured value.
func (j *Jobs) timeBuffer(ctx context.Context, store *db.Store) float64 {
	s, err := store.Settings.GetSetting(ctx, SettingEstimatedTimeBuffer)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			j.log.WithError(err).Warn("read estimated time buffer")
		}
		return j.defaultBuffer
	}
	buffer, err := strconv.ParseFloat(s.Value, 64)
	if err != nil || buffer < 0 {
		j.log.WithField("value", s.Value).Warn("ignoring invalid estimated time buffer")
		return j.defaultBuffer
	}
	return buffer
}

// TimeBuffer is the percentage currently applied to print time estimates.
func (j *Jobs) TimeBuffer(ctx context.Context) float64 {
	return j.timeBuffer(ctx, j.store)
}

func (j *Jobs) SetTimeBuffer(ctx context.Context, percent float64) error {
	if math.IsNaN(percent) || percent < 0 || percent > 100 {
		return fmt.Errorf("%w: time buffer must be between 0 and 100 percent", ErrInvalidInput)
	}
	value := strconv.FormatFloat(percent, 'f', -1, 64)
	if err := j.store.Settings.SetSetting(ctx, SettingEstimatedTimeBuffer, value, false); err != nil {
		j.log.WithError(err).Error("save estimated time buffer")
		return err
	}
	j.log.WithField("percent", percent).Info("estimated time buffer updated")
	return nil
}

func (j *Jobs) UpdateStatus(ctx context.Context, id int64, status JobStatus, notes string) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}

	var plan *jobPlan
	var from string
	var userID int64
	err := j.store.InTx(ctx, func(tx *db.Store) error {
		job, err := getJob(ctx, tx, id)
		if err != nil {
			return err
		}
		from = job.Status

		var hours float64
		entry, err := getQueueEntry(ctx, tx, job.QueueID)
		switch {
		case err == nil:
			userID = entry.UserID
			hours, _ = estimatedHours(entry)
		case !errors.Is(err, ErrQueueEntryNotFound):
			return err
		}

		plan, err = planJobTransition(job, status, notes, hours, j.timeBuffer(ctx, tx), time.Now().UTC())
		if err != nil {
			return err
		}
		if !plan.changed {
			return nil
		}

		ok, err := tx.Jobs.UpdateJobState(ctx, &plan.next, from)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConcurrentUpdate
		}

		for _, effect := range plan.effects {
			switch effect {
			case effectReleasePrinter:
				if _, err := tx.Printers.ReleasePrinter(ctx, job.PrinterID, job.ID); err != nil {
					return err
				}
			case effectAcquirePrinter:
				ok, err := tx.Printers.AcquirePrinter(ctx, job.PrinterID, job.ID)
				if err != nil {
					return err
				}
				if !ok {
					return ErrPrinterUnavailable
				}
			}
		}
		return nil
	})
	if err != nil {
		logFailure(j.log, err, "update job status", logrus.Fields{"job_id": id, "to": status})
		return err
	}
	if !plan.changed {
		return nil
	}

	j.log.WithFields(logrus.Fields{
		"job_id":     id,
		"old_status": from,
		"new_status": status,
	}).Info("job status changed")

	j.notifier.Notify(jobStatusNotification(&plan.next, userID))
	return nil
}

func jobStatusNotification(job *db.PrintJob, userID int64) *notify.Notification {
	n := &notify.Notification{
		Event:       notify.EventJobStatusChanged,
		UserID:      userID,
		Type:        notify.TypeInfo,
		RelatedType: "print_job",
		RelatedID:   job.ID,
		Data:        map[string]interface{}{"status": job.Status},
	}

	switch JobStatus(job.Status) {
	case JobPending:
		n.Title = "Your print is back in line"
		n.Message = fmt.Sprintf("Print job #%d will be retried.", job.ID)
	case JobPreparing:
		n.Title = "Preparing your model for printing"
		n.Message = fmt.Sprintf("Print job #%d is being prepared.", job.ID)
	case JobPrinting:
		n.Title = "Your model is being printed"
		n.Message = fmt.Sprintf("Print job #%d has started printing.", job.ID)
		if job.EstimatedEndTime != nil {
			n.Message += fmt.Sprintf(" Estimated completion: %s.", job.EstimatedEndTime.Format(time.RFC1123))
		}
	case JobPostProcessing:
		n.Title = "Your model is in post-processing"
		n.Message = fmt.Sprintf("Print job #%d finished printing and is being cleaned up.", job.ID)
	case JobCompleted:
		n.Title = "Print completed successfully"
		n.Message = fmt.Sprintf("Print job #%d is complete.", job.ID)
		n.Type = notify.TypeSuccess
	case JobFailed:
		n.Title = "Print failed"
		n.Message = fmt.Sprintf("Print job #%d failed. Our team will review it.", job.ID)
		n.Type = notify.TypeError
	}
	return n
}

// UpdateProgress stores progress clamped to [0, 100].
func (j *Jobs) UpdateProgress(ctx context.Context, id int64, progress float64) error {
	if math.IsNaN(progress) {
		return fmt.Errorf("%w: progress is not a number", ErrInvalidInput)
	}
	progress = math.Max(0, math.Min(100, progress))

	ok, err := j.store.Jobs.UpdateProgress(ctx, id, progress)
	if err != nil {
		j.log.WithError(err).WithField("job_id", id).Error("update job progress")
		return err
	}
	if !ok {
		return ErrJobNotFound
	}
	return nil
}

func (j *Jobs) SetMaterialUsed(ctx context.Context, id int64, grams float64) error {
	if math.IsNaN(grams) {
		return fmt.Errorf("%w: material is not a number", ErrInvalidInput)
	}
	ok, err := j.store.Jobs.UpdateMaterialUsed(ctx, id, math.Max(0, grams))
	if err != nil {
		j.log.WithError(err).WithField("job_id", id).Error("update material used")
		return err
	}
	if !ok {
		return ErrJobNotFound
	}
	return nil
}

func (j *Jobs) List(ctx context.Context, filter db.JobFilter) ([]*db.PrintJob, error) {
	if filter.Status != "" && !JobStatus(filter.Status).Valid() {
		return nil, ErrInvalidStatus
	}
	return j.store.Jobs.ListJobs(ctx, filter)
}

// Current returns the jobs occupying a build plate.
func (j *Jobs) Current(ctx context.Context) ([]*db.PrintJob, error) {
	return j.store.Jobs.ListCurrent(ctx)
}

func (j *Jobs) Statistics(ctx context.Context) (*JobStats, error) {
	byStatus, err := j.store.Jobs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	durations, err := j.store.Jobs.ListCompletedDurations(ctx)
	if err != nil {
		return nil, err
	}
	material, err := j.store.Jobs.SumMaterialUsed(ctx)
	if err != nil {
		return nil, err
	}

	stats := &JobStats{ByStatus: byStatus, TotalMaterialUsed: material}
	for _, n := range byStatus {
		stats.Total += n
	}
	if len(durations) > 0 {
		var total time.Duration
		for _, d := range durations {
			total += d.EndTime.Sub(d.StartTime)
		}
		stats.AvgPrintHours = total.Hours() / float64(len(durations))
	}
	if stats.Total > 0 {
		stats.CompletionRate = float64(byStatus[string(JobCompleted)]) / float64(stats.Total) * 100
	}
	return stats, nil
}
