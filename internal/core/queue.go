package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orrn/printfarm/internal/db"
	"github.com/orrn/printfarm/internal/logging"
	"github.com/orrn/printfarm/internal/notify"
)

const (
	DefaultPriority = 5
	MinPriority     = 1
	MaxPriority     = 10
)

const (
	HistoryCreated        = "created"
	HistoryStatusChange   = "status_change"
	HistoryPriorityChange = "priority_change"
	HistoryDeleted        = "deleted"
)

// Queue owns the request level lifecycle of approved models waiting for a
// printer.
type Queue struct {
	store     *db.Store
	approvals ModelApprovals
	notifier  Notifier
	log       *logrus.Entry
}

func NewQueue(store *db.Store, approvals ModelApprovals, notifier Notifier) *Queue {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Queue{
		store:     store,
		approvals: approvals,
		notifier:  notifier,
		log:       logging.Component("queue"),
	}
}

func clampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (int64, error) {
	if req.ModelID <= 0 || req.UserID <= 0 {
		return 0, fmt.Errorf("%w: model and user are required", ErrInvalidInput)
	}

	owner, approved, err := q.approvals.ApprovedOwner(ctx, req.ModelID)
	if err != nil {
		q.log.WithError(err).WithField("model_id", req.ModelID).Error("check model approval")
		return 0, err
	}
	if !approved || owner != req.UserID {
		q.log.WithFields(logrus.Fields{
			"model_id": req.ModelID,
			"user_id":  req.UserID,
		}).Warn("rejected enqueue of unapproved model")
		return 0, ErrModelNotApproved
	}

	priority := req.Priority
	if priority == 0 {
		priority = DefaultPriority
	}

	entry := &db.QueueEntry{
		ModelID:       req.ModelID,
		UserID:        req.UserID,
		Status:        string(QueuePending),
		Priority:      clampPriority(priority),
		Notes:         req.Notes,
		PrintSettings: req.Settings.JSON(),
	}

	err = q.store.InTx(ctx, func(tx *db.Store) error {
		if err := tx.Queue.CreateEntry(ctx, entry); err != nil {
			return err
		}
		status := string(QueuePending)
		return tx.Queue.AddHistory(ctx, &db.QueueHistoryEvent{
			QueueID:     entry.ID,
			EventType:   HistoryCreated,
			NewValue:    &status,
			Description: "Added to print queue",
			ActorID:     &req.UserID,
		})
	})
	if err != nil {
		q.log.WithError(err).WithField("model_id", req.ModelID).Error("enqueue")
		return 0, err
	}

	q.log.WithFields(logrus.Fields{
		"queue_id": entry.ID,
		"model_id": entry.ModelID,
		"priority": entry.Priority,
	}).Info("model queued")

	q.notifier.Notify(&notify.Notification{
		Event:       notify.EventQueueCreated,
		UserID:      entry.UserID,
		Title:       "Your model was added to the print queue",
		Message:     fmt.Sprintf("Print request #%d is waiting for a printer.", entry.ID),
		Type:        notify.TypeInfo,
		RelatedType: "print_queue",
		RelatedID:   entry.ID,
	})

	return entry.ID, nil
}

func (q *Queue) Get(ctx context.Context, id int64) (*db.QueueEntry, error) {
	return getQueueEntry(ctx, q.store, id)
}

func getQueueEntry(ctx context.Context, store *db.Store, id int64) (*db.QueueEntry, error) {
	e, err := store.Queue.GetEntry(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQueueEntryNotFound
		}
		return nil, err
	}
	return e, nil
}

// transitionQueue validates and writes a queue status change together with
// its history event. It must run inside tx. The returned bool is false for a
// same-status no-op.
func transitionQueue(ctx context.Context, tx *db.Store, e *db.QueueEntry, to QueueStatus, actorID *int64, notes string) (bool, error) {
	from := QueueStatus(e.Status)
	if !CanQueueTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if from == to {
		return false, nil
	}

	newNotes := e.Notes
	if notes != "" {
		newNotes = appendNote(e.Notes, notes, time.Now().UTC())
	}

	ok, err := tx.Queue.UpdateStatus(ctx, e.ID, string(from), string(to), newNotes)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrConcurrentUpdate
	}

	description := fmt.Sprintf("Status changed from %s to %s", from, to)
	if notes != "" {
		description += ": " + notes
	}
	prev, next := string(from), string(to)
	if err := tx.Queue.AddHistory(ctx, &db.QueueHistoryEvent{
		QueueID:       e.ID,
		EventType:     HistoryStatusChange,
		PreviousValue: &prev,
		NewValue:      &next,
		Description:   description,
		ActorID:       actorID,
	}); err != nil {
		return false, err
	}

	e.Status = next
	e.Notes = newNotes
	return true, nil
}

func (q *Queue) UpdateStatus(ctx context.Context, id int64, status QueueStatus, actorID *int64, notes string) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}

	var entry *db.QueueEntry
	var from string
	var changed bool
	err := q.store.InTx(ctx, func(tx *db.Store) error {
		e, err := getQueueEntry(ctx, tx, id)
		if err != nil {
			return err
		}
		entry, from = e, e.Status
		changed, err = transitionQueue(ctx, tx, e, status, actorID, notes)
		return err
	})
	if err != nil {
		q.logFailure(err, "update queue status", logrus.Fields{"queue_id": id, "to": status})
		return err
	}
	if !changed {
		return nil
	}

	q.log.WithFields(logrus.Fields{
		"queue_id":   id,
		"old_status": from,
		"new_status": status,
	}).Info("queue status changed")

	q.notifier.Notify(queueStatusNotification(entry, status))
	return nil
}

func queueStatusNotification(e *db.QueueEntry, status QueueStatus) *notify.Notification {
	n := &notify.Notification{
		Event:       notify.EventQueueStatusChanged,
		UserID:      e.UserID,
		Type:        notify.TypeInfo,
		RelatedType: "print_queue",
		RelatedID:   e.ID,
		Data:        map[string]interface{}{"status": string(status)},
	}

	switch status {
	case QueueAssigned:
		n.Title = "Your print has been scheduled"
		n.Message = fmt.Sprintf("Print request #%d has been assigned to a printer.", e.ID)
	case QueuePrinting:
		n.Title = "Your 3D print has started"
		n.Message = fmt.Sprintf("Printing has started for request #%d.", e.ID)
	case QueueCompleted:
		n.Title = "Your 3D print is complete"
		n.Message = fmt.Sprintf("Print request #%d has finished printing.", e.ID)
		n.Type = notify.TypeSuccess
	case QueueFailed:
		n.Title = "There was a problem with your 3D print"
		n.Message = fmt.Sprintf("Print request #%d failed. Our team will review it and contact you.", e.ID)
		n.Type = notify.TypeError
	case QueueCancelled:
		n.Title = "Your 3D print was cancelled"
		n.Message = fmt.Sprintf("Print request #%d was cancelled.", e.ID)
		n.Type = notify.TypeWarning
	default:
		n.Title = "Your 3D print was updated"
		n.Message = fmt.Sprintf("Print request #%d is now %s.", e.ID, status)
	}
	return n
}

func (q *Queue) UpdatePriority(ctx context.Context, id int64, priority int, actorID *int64) error {
	priority = clampPriority(priority)

	var entry *db.QueueEntry
	var previous int
	changed := false
	err := q.store.InTx(ctx, func(tx *db.Store) error {
		e, err := getQueueEntry(ctx, tx, id)
		if err != nil {
			return err
		}
		entry, previous = e, e.Priority
		if e.Priority == priority {
			return nil
		}

		ok, err := tx.Queue.UpdatePriority(ctx, id, e.Priority, priority)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConcurrentUpdate
		}

		prev, next := strconv.Itoa(e.Priority), strconv.Itoa(priority)
		if err := tx.Queue.AddHistory(ctx, &db.QueueHistoryEvent{
			QueueID:       id,
			EventType:     HistoryPriorityChange,
			PreviousValue: &prev,
			NewValue:      &next,
			Description:   fmt.Sprintf("Priority changed from %s to %s", prev, next),
			ActorID:       actorID,
		}); err != nil {
			return err
		}
		e.Priority = priority
		changed = true
		return nil
	})
	if err != nil {
		q.logFailure(err, "update queue priority", logrus.Fields{"queue_id": id})
		return err
	}
	if !changed {
		return nil
	}

	q.notifier.Notify(&notify.Notification{
		Event:       notify.EventQueuePriorityChanged,
		UserID:      entry.UserID,
		Title:       "Your print priority was updated",
		Message:     fmt.Sprintf("Print request #%d priority changed from %d to %d.", id, previous, priority),
		Type:        notify.TypeInfo,
		RelatedType: "print_queue",
		RelatedID:   id,
	})
	return nil
}

// GetPending returns pending entries in admission order: highest priority
// first, oldest first within a priority.
func (q *Queue) GetPending(ctx context.Context) ([]*db.QueueEntry, error) {
	return q.store.Queue.ListPending(ctx)
}

func (q *Queue) List(ctx context.Context, filter db.QueueFilter) ([]*db.QueueEntry, error) {
	if filter.Status != "" && !QueueStatus(filter.Status).Valid() {
		return nil, ErrInvalidStatus
	}
	return q.store.Queue.ListEntries(ctx, filter)
}

func (q *Queue) History(ctx context.Context, id int64) ([]*db.QueueHistoryEvent, error) {
	return q.store.Queue.ListHistory(ctx, id)
}

// Delete removes an entry that never got a job. A tombstone event holding the
// last state of the entry is written first.
func (q *Queue) Delete(ctx context.Context, id int64, actorID *int64) error {
	err := q.store.InTx(ctx, func(tx *db.Store) error {
		e, err := getQueueEntry(ctx, tx, id)
		if err != nil {
			return err
		}

		_, err = tx.Jobs.GetJobByQueueID(ctx, id)
		if err == nil {
			return ErrQueueEntryInUse
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		snapshot, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to snapshot queue entry: %w", err)
		}
		prev := string(snapshot)
		if err := tx.Queue.AddHistory(ctx, &db.QueueHistoryEvent{
			QueueID:       id,
			EventType:     HistoryDeleted,
			PreviousValue: &prev,
			Description:   "Queue entry deleted",
			ActorID:       actorID,
		}); err != nil {
			return err
		}
		return tx.Queue.DeleteEntry(ctx, id)
	})
	if err != nil {
		q.logFailure(err, "delete queue entry", logrus.Fields{"queue_id": id})
		return err
	}

	q.log.WithField("queue_id", id).Info("queue entry deleted")
	return nil
}

func (q *Queue) Stats(ctx context.Context) (*QueueStats, error) {
	byStatus, err := q.store.Queue.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	stats := &QueueStats{ByStatus: byStatus}
	for _, n := range byStatus {
		stats.Total += n
	}
	return stats, nil
}

// logFailure logs rejected requests at warn. Disallowed transitions and
// infrastructure failures are logged at error.
func (q *Queue) logFailure(err error, op string, fields logrus.Fields) {
	logFailure(q.log, err, op, fields)
}

func logFailure(log *logrus.Entry, err error, op string, fields logrus.Fields) {
	entry := log.WithError(err).WithFields(fields)
	if isDomainError(err) {
		entry.Warn(op)
		return
	}
	entry.Error(op)
}

func isDomainError(err error) bool {
	for _, target := range []error{
		ErrPrinterNotFound, ErrPrinterBusy, ErrPrinterUnavailable, ErrInvalidPrinterStatus,
		ErrQueueEntryNotFound, ErrQueueEntryInUse, ErrModelNotApproved,
		ErrJobNotFound, ErrJobExists,
		ErrStatusNotFound, ErrStatusExists, ErrTerminalStatus, ErrInvalidMessageType,
		ErrInvalidInput, ErrInvalidStatus, ErrConcurrentUpdate,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
