package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/orrn/printfarm/internal/db"
	"github.com/orrn/printfarm/internal/logging"
	"github.com/orrn/printfarm/internal/notify"
)

// Progress values at which a customer facing notification is raised.
var progressThresholds = []float64{25, 50, 75, 99}

// maxMetricProgress keeps telemetry from claiming a finished print. Only an
// explicit completed status sets 100.
const maxMetricProgress = 99.99

var validate = validator.New()

// Tracker follows one order item through printing. It is fed by operators
// and by printer telemetry and owns its own status vocabulary.
type Tracker struct {
	store       *db.Store
	prefs       PreferenceLookup
	notifier    Notifier
	cache       StatusCache
	broadcaster Broadcaster
	log         *logrus.Entry
}

func NewTracker(store *db.Store, prefs PreferenceLookup, notifier Notifier) *Tracker {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if prefs == nil {
		prefs = NewStorePreferences(store)
	}
	return &Tracker{
		store:    store,
		prefs:    prefs,
		notifier: notifier,
		log:      logging.Component("tracker"),
	}
}

// UseCache makes Live serve snapshots from c and keeps c current on writes.
func (t *Tracker) UseCache(c StatusCache) *Tracker {
	t.cache = c
	return t
}

func (t *Tracker) UseBroadcaster(b Broadcaster) *Tracker {
	t.broadcaster = b
	return t
}

func (t *Tracker) Create(ctx context.Context, req CreateStatusRequest) (int64, error) {
	if req.OrderID <= 0 || req.ProductID <= 0 || req.QueueID <= 0 {
		return 0, fmt.Errorf("%w: order, product and queue entry are required", ErrInvalidInput)
	}
	if req.TotalPrintTimeSeconds != nil && *req.TotalPrintTimeSeconds < 0 {
		return 0, fmt.Errorf("%w: total print time cannot be negative", ErrInvalidInput)
	}

	r := &db.StatusRecord{
		OrderID:               req.OrderID,
		ProductID:             req.ProductID,
		QueueID:               req.QueueID,
		PrinterID:             req.PrinterID,
		Status:                string(TrackPending),
		TotalPrintTimeSeconds: req.TotalPrintTimeSeconds,
		Notes:                 req.Notes,
	}

	err := t.store.InTx(ctx, func(tx *db.Store) error {
		if _, err := getQueueEntry(ctx, tx, req.QueueID); err != nil {
			return err
		}
		_, err := tx.Status.GetByOrderProduct(ctx, req.OrderID, req.ProductID)
		if err == nil {
			return ErrStatusExists
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if err := tx.Status.CreateStatus(ctx, r); err != nil {
			return err
		}
		return tx.Status.AddUpdate(ctx, &db.StatusUpdate{
			StatusID:    r.ID,
			NewStatus:   r.Status,
			NewProgress: 0,
			Message:     "Print status created",
		})
	})
	if err != nil {
		logFailure(t.log, err, "create print status", logrus.Fields{"order_id": req.OrderID, "product_id": req.ProductID})
		return 0, err
	}

	t.log.WithFields(logrus.Fields{
		"status_id":  r.ID,
		"order_id":   r.OrderID,
		"product_id": r.ProductID,
	}).Info("print status created")

	t.refreshLive(ctx, r, nil)
	return r.ID, nil
}

func (t *Tracker) Get(ctx context.Context, id int64) (*db.StatusRecord, error) {
	return getStatus(ctx, t.store, id)
}

func getStatus(ctx context.Context, store *db.Store, id int64) (*db.StatusRecord, error) {
	r, err := store.Status.GetStatus(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStatusNotFound
		}
		return nil, err
	}
	return r, nil
}

// applyTrackStatus returns r moved into status at now. progress, when set,
// is clamped to [0, 100] and never lowers the stored value.
func applyTrackStatus(r *db.StatusRecord, status TrackStatus, progress *float64, now time.Time) db.StatusRecord {
	next := *r
	next.Status = string(status)
	if progress != nil {
		next.ProgressPercentage = math.Max(r.ProgressPercentage, clampProgress(*progress))
	}

	switch status {
	case TrackPrinting:
		if next.StartedAt == nil {
			started := now
			next.StartedAt = &started
			if next.TotalPrintTimeSeconds != nil && *next.TotalPrintTimeSeconds > 0 {
				eta := now.Add(time.Duration(*next.TotalPrintTimeSeconds) * time.Second)
				next.EstimatedCompletion = &eta
			}
		}
	case TrackCompleted:
		next.ProgressPercentage = 100
		if r.Status != string(status) || next.CompletedAt == nil {
			done := now
			next.CompletedAt = &done
		}
	case TrackFailed, TrackCanceled:
		if r.Status != string(status) || next.CompletedAt == nil {
			done := now
			next.CompletedAt = &done
		}
	}
	return next
}

func clampProgress(p float64) float64 {
	return math.Max(0, math.Min(100, p))
}

func (t *Tracker) UpdateStatus(ctx context.Context, id int64, status TrackStatus, progress *float64, message, actor string) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	if progress != nil && math.IsNaN(*progress) {
		return fmt.Errorf("%w: progress is not a number", ErrInvalidInput)
	}

	var prev, next db.StatusRecord
	var userID int64
	err := t.store.InTx(ctx, func(tx *db.Store) error {
		r, err := getStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if TrackStatus(r.Status).Terminal() && r.Status != string(status) {
			return fmt.Errorf("%w: %s", ErrTerminalStatus, r.Status)
		}

		prev = *r
		next = applyTrackStatus(r, status, progress, time.Now().UTC())
		if err := t.writeState(ctx, tx, &prev, &next, message, actor); err != nil {
			return err
		}
		userID = t.customerFor(ctx, tx, r.QueueID)
		return nil
	})
	if err != nil {
		logFailure(t.log, err, "update print status", logrus.Fields{"status_id": id, "to": status})
		return err
	}

	t.log.WithFields(logrus.Fields{
		"status_id":  id,
		"old_status": prev.Status,
		"new_status": next.Status,
		"progress":   next.ProgressPercentage,
	}).Info("print status updated")

	t.maybeNotify(ctx, &prev, &next, userID)
	t.refreshLive(ctx, &next, nil)
	return nil
}

// writeState persists next over prev together with its audit rows.
func (t *Tracker) writeState(ctx context.Context, tx *db.Store, prev, next *db.StatusRecord, message, actor string) error {
	ok, err := tx.Status.UpdateState(ctx, next, prev.Status)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConcurrentUpdate
	}

	prevStatus, prevProgress := prev.Status, prev.ProgressPercentage
	if err := tx.Status.AddUpdate(ctx, &db.StatusUpdate{
		StatusID:         next.ID,
		PreviousStatus:   &prevStatus,
		NewStatus:        next.Status,
		PreviousProgress: &prevProgress,
		NewProgress:      next.ProgressPercentage,
		UpdatedBy:        actor,
		Message:          message,
	}); err != nil {
		return err
	}

	if message == "" {
		return nil
	}
	return tx.Status.AddMessage(ctx, &db.StatusMessage{
		StatusID:          next.ID,
		Message:           message,
		Type:              TrackStatus(next.Status).MessageType(),
		VisibleToCustomer: true,
	})
}

// customerFor resolves the requester of the queue entry behind a status
// record. Zero means nobody to notify.
func (t *Tracker) customerFor(ctx context.Context, store *db.Store, queueID int64) int64 {
	entry, err := getQueueEntry(ctx, store, queueID)
	if err != nil {
		if !errors.Is(err, ErrQueueEntryNotFound) {
			t.log.WithError(err).WithField("queue_id", queueID).Warn("resolve customer")
		}
		return 0
	}
	return entry.UserID
}

// Reset starts a new print cycle. Progress and timing are cleared; a
// completed record cannot be reset.
func (t *Tracker) Reset(ctx context.Context, id int64, message, actor string) error {
	var prev, next db.StatusRecord
	var userID int64
	err := t.store.InTx(ctx, func(tx *db.Store) error {
		r, err := getStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if r.Status == string(TrackCompleted) {
			return fmt.Errorf("%w: completed prints cannot be reset", ErrTerminalStatus)
		}

		prev, next = *r, *r
		next.Status = string(TrackPending)
		next.ProgressPercentage = 0
		next.StartedAt = nil
		next.EstimatedCompletion = nil
		next.CompletedAt = nil
		next.ElapsedPrintTimeSeconds = nil

		if message == "" {
			message = "Print cycle restarted"
		}
		if err := t.writeState(ctx, tx, &prev, &next, message, actor); err != nil {
			return err
		}
		userID = t.customerFor(ctx, tx, r.QueueID)
		return nil
	})
	if err != nil {
		logFailure(t.log, err, "reset print status", logrus.Fields{"status_id": id})
		return err
	}

	t.log.WithFields(logrus.Fields{"status_id": id, "old_status": prev.Status}).Info("print status reset")
	t.maybeNotify(ctx, &prev, &next, userID)
	t.refreshLive(ctx, &next, nil)
	return nil
}

// RecordMetrics stores one telemetry sample. When the sample carries the
// current layer, the layer count and the remaining time, the record's
// progress, ETA and elapsed time are recomputed from it.
func (t *Tracker) RecordMetrics(ctx context.Context, id int64, in MetricInput) (int64, error) {
	if err := validate.Struct(in); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	sample := &db.MetricSample{
		StatusID:                  id,
		HotendTemp:                in.HotendTemp,
		BedTemp:                   in.BedTemp,
		SpeedPercentage:           in.SpeedPercentage,
		FanSpeedPercentage:        in.FanSpeedPercentage,
		LayerHeight:               in.LayerHeight,
		CurrentLayer:              in.CurrentLayer,
		TotalLayers:               in.TotalLayers,
		FilamentUsedMM:            in.FilamentUsedMM,
		PrintTimeRemainingSeconds: in.PrintTimeRemainingSeconds,
	}
	if in.AdditionalData != nil {
		data, err := json.Marshal(in.AdditionalData)
		if err != nil {
			return 0, fmt.Errorf("%w: additional data: %v", ErrInvalidInput, err)
		}
		sample.AdditionalData = data
	}

	var prev, next db.StatusRecord
	var userID int64
	derived := false
	err := t.store.InTx(ctx, func(tx *db.Store) error {
		r, err := getStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := tx.Status.AddMetric(ctx, sample); err != nil {
			return err
		}

		if in.CurrentLayer == nil || in.TotalLayers == nil || in.PrintTimeRemainingSeconds == nil {
			return nil
		}
		if TrackStatus(r.Status).Terminal() {
			return nil
		}

		prev = *r
		next = applyMetrics(r, sample, time.Now().UTC())
		ok, err := tx.Status.UpdateState(ctx, &next, r.Status)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConcurrentUpdate
		}
		derived = true
		userID = t.customerFor(ctx, tx, r.QueueID)
		return nil
	})
	if err != nil {
		logFailure(t.log, err, "record metrics", logrus.Fields{"status_id": id})
		return 0, err
	}

	if derived {
		t.maybeNotify(ctx, &prev, &next, userID)
		t.refreshLive(ctx, &next, sample)
	}
	return sample.ID, nil
}

// applyMetrics derives progress, ETA and elapsed time from a sample that
// carries layer and remaining time readings.
func applyMetrics(r *db.StatusRecord, m *db.MetricSample, now time.Time) db.StatusRecord {
	next := *r

	if *m.TotalLayers > 0 {
		p := float64(*m.CurrentLayer) / float64(*m.TotalLayers) * 100
		p = math.Min(maxMetricProgress, math.Max(0, p))
		next.ProgressPercentage = math.Max(r.ProgressPercentage, p)
	}

	eta := now.Add(time.Duration(*m.PrintTimeRemainingSeconds) * time.Second)
	next.EstimatedCompletion = &eta

	if r.StartedAt != nil {
		elapsed := int64(math.Max(0, now.Sub(*r.StartedAt).Seconds()))
		next.ElapsedPrintTimeSeconds = &elapsed
	}
	return next
}

func crossedThreshold(before, after float64) bool {
	for _, th := range progressThresholds {
		if before < th && after >= th {
			return true
		}
	}
	return false
}

// maybeNotify raises a notification when the status changed or progress
// crossed a threshold. Operators get every one; the customer only those
// their preferences allow.
func (t *Tracker) maybeNotify(ctx context.Context, prev, next *db.StatusRecord, userID int64) {
	changed := prev.Status != next.Status
	if !changed && !crossedThreshold(prev.ProgressPercentage, next.ProgressPercentage) {
		return
	}

	n := trackerNotification(next, changed)
	t.notifier.NotifyAdmins(n)

	if userID == 0 {
		return
	}
	prefs, err := t.prefs.Preferences(ctx, userID)
	if err != nil {
		t.log.WithError(err).WithField("user_id", userID).Warn("load notification preferences")
		prefs = db.DefaultPreferences(userID)
	}
	if shouldNotifyCustomer(prev, next, prefs) {
		c := *n
		c.UserID = userID
		t.notifier.Notify(&c)
	}
}

func shouldNotifyCustomer(prev, next *db.StatusRecord, prefs *db.NotificationPreferences) bool {
	status := TrackStatus(next.Status)
	changed := prev.Status != next.Status

	switch {
	case status == TrackCompleted || status == TrackFailed:
		return changed
	case changed && status == TrackPrinting && next.ProgressPercentage < 5:
		return prefs.NotifyOnStart
	case changed && status == TrackPaused:
		return prefs.NotifyOnPause
	}

	if !prefs.NotifyOnProgress {
		return false
	}
	interval := float64(prefs.ProgressInterval)
	if interval <= 0 {
		interval = 25
	}
	return math.Floor(next.ProgressPercentage/interval) > math.Floor(prev.ProgressPercentage/interval)
}

func trackerNotification(r *db.StatusRecord, changed bool) *notify.Notification {
	n := &notify.Notification{
		Event:       notify.EventPrintProgress,
		Type:        notify.TypeInfo,
		RelatedType: "print_status",
		RelatedID:   r.ID,
		Data: map[string]interface{}{
			"order_id":   r.OrderID,
			"product_id": r.ProductID,
			"status":     r.Status,
			"progress":   r.ProgressPercentage,
		},
	}
	if changed {
		n.Event = notify.EventPrintStatusChanged
	}

	item := fmt.Sprintf("order #%d item #%d", r.OrderID, r.ProductID)
	switch TrackStatus(r.Status) {
	case TrackPrinting:
		if r.ProgressPercentage < 5 {
			n.Title = "Printing started"
			n.Message = fmt.Sprintf("Printing of %s has started.", item)
		} else {
			n.Title = "Print progress"
			n.Message = fmt.Sprintf("Printing of %s is %.0f%% complete.", item, r.ProgressPercentage)
		}
	case TrackCompleted:
		n.Title = "Print completed"
		n.Message = fmt.Sprintf("Printing of %s finished successfully.", item)
		n.Type = notify.TypeSuccess
	case TrackFailed:
		n.Title = "Print failed"
		n.Message = fmt.Sprintf("There was a problem printing %s. Our team has been notified.", item)
		n.Type = notify.TypeError
	case TrackPaused:
		n.Title = "Print paused"
		n.Message = fmt.Sprintf("Printing of %s was paused.", item)
		n.Type = notify.TypeWarning
	case TrackPreparing:
		n.Title = "Preparing your print"
		n.Message = fmt.Sprintf("We are preparing to print %s.", item)
	case TrackCanceled:
		n.Title = "Print canceled"
		n.Message = fmt.Sprintf("Printing of %s was canceled.", item)
		n.Type = notify.TypeWarning
	default:
		n.Title = "Print status update"
		n.Message = fmt.Sprintf("Printing of %s is %s (%.0f%% complete).", item, r.Status, r.ProgressPercentage)
	}
	return n
}

func (t *Tracker) AddMessage(ctx context.Context, id int64, message, msgType string, visibleToCustomer bool) (int64, error) {
	if message == "" {
		return 0, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	if msgType == "" {
		msgType = MessageInfo
	}
	if !validMessageType(msgType) {
		return 0, ErrInvalidMessageType
	}
	if _, err := t.Get(ctx, id); err != nil {
		return 0, err
	}

	m := &db.StatusMessage{
		StatusID:          id,
		Message:           message,
		Type:              msgType,
		VisibleToCustomer: visibleToCustomer,
	}
	if err := t.store.Status.AddMessage(ctx, m); err != nil {
		t.log.WithError(err).WithField("status_id", id).Error("add status message")
		return 0, err
	}
	return m.ID, nil
}

func pageLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func (t *Tracker) Messages(ctx context.Context, id int64, visibleOnly bool, limit int) ([]*db.StatusMessage, error) {
	return t.store.Status.ListMessages(ctx, id, visibleOnly, pageLimit(limit, 50, 500))
}

func (t *Tracker) Updates(ctx context.Context, id int64, limit int) ([]*db.StatusUpdate, error) {
	return t.store.Status.ListUpdates(ctx, id, pageLimit(limit, 50, 500))
}

func (t *Tracker) RecentMetrics(ctx context.Context, id int64, limit int) ([]*db.MetricSample, error) {
	return t.store.Status.ListRecentMetrics(ctx, id, pageLimit(limit, 100, 1000))
}

// LatestMetrics returns nil without error when no sample was recorded.
func (t *Tracker) LatestMetrics(ctx context.Context, id int64) (*db.MetricSample, error) {
	m, err := t.store.Status.LatestMetric(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func (t *Tracker) Detailed(ctx context.Context, id int64) (*DetailedStatus, error) {
	r, err := t.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	latest, err := t.LatestMetrics(ctx, id)
	if err != nil {
		return nil, err
	}
	messages, err := t.Messages(ctx, id, false, 0)
	if err != nil {
		return nil, err
	}
	updates, err := t.Updates(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	return &DetailedStatus{
		Record:        r,
		LatestMetrics: latest,
		Messages:      messages,
		Updates:       updates,
	}, nil
}

func (t *Tracker) Active(ctx context.Context, limit, offset int) ([]*db.StatusRecord, error) {
	if offset < 0 {
		offset = 0
	}
	return t.store.Status.ListActive(ctx, pageLimit(limit, 10, 100), offset)
}

func (t *Tracker) RecentlyCompleted(ctx context.Context, days, limit int) ([]*db.StatusRecord, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	return t.store.Status.ListRecentlyCompleted(ctx, since, pageLimit(limit, 20, 100))
}

func (t *Tracker) GetByOrder(ctx context.Context, orderID int64) ([]*db.StatusRecord, error) {
	return t.store.Status.ListByOrder(ctx, orderID)
}

func (t *Tracker) GetByQueue(ctx context.Context, queueID int64) ([]*db.StatusRecord, error) {
	return t.store.Status.ListByQueue(ctx, queueID)
}

// Live returns the dashboard snapshot of a record, from the cache when one
// is configured and warm.
func (t *Tracker) Live(ctx context.Context, id int64) (*LiveStatus, error) {
	if t.cache != nil {
		snap, err := t.cache.Get(ctx, id)
		if err != nil {
			t.log.WithError(err).WithField("status_id", id).Warn("read live status cache")
		} else if snap != nil {
			return snap, nil
		}
	}

	r, err := t.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	latest, err := t.LatestMetrics(ctx, id)
	if err != nil {
		return nil, err
	}

	snap := liveSnapshot(r, latest)
	if t.cache != nil {
		if err := t.cache.Put(ctx, snap); err != nil {
			t.log.WithError(err).WithField("status_id", id).Warn("write live status cache")
		}
	}
	return snap, nil
}

func liveSnapshot(r *db.StatusRecord, latest *db.MetricSample) *LiveStatus {
	return &LiveStatus{
		StatusID:            r.ID,
		OrderID:             r.OrderID,
		ProductID:           r.ProductID,
		QueueID:             r.QueueID,
		PrinterID:           r.PrinterID,
		Status:              r.Status,
		Progress:            r.ProgressPercentage,
		EstimatedCompletion: r.EstimatedCompletion,
		ElapsedSeconds:      r.ElapsedPrintTimeSeconds,
		LatestMetrics:       latest,
		UpdatedAt:           r.UpdatedAt,
	}
}

// refreshLive pushes the post-commit state of r to the cache and to
// connected dashboards. latest may be nil, in which case it is looked up.
func (t *Tracker) refreshLive(ctx context.Context, r *db.StatusRecord, latest *db.MetricSample) {
	if t.cache == nil && t.broadcaster == nil {
		return
	}
	if latest == nil {
		var err error
		if latest, err = t.LatestMetrics(ctx, r.ID); err != nil {
			t.log.WithError(err).WithField("status_id", r.ID).Warn("load latest metrics")
		}
	}

	snap := liveSnapshot(r, latest)
	if t.cache != nil {
		if err := t.cache.Put(ctx, snap); err != nil {
			t.log.WithError(err).WithField("status_id", r.ID).Warn("write live status cache")
		}
	}
	if t.broadcaster != nil {
		t.broadcaster.BroadcastStatus(snap)
	}
}
