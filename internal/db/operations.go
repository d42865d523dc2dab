package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store groups the table operations. Operations run against the underlying
// *sql.DB unless the Store was handed out by InTx.
type Store struct {
	db *sql.DB
	tx *sql.Tx

	Printers       *PrinterOperations
	CustomerModels *CustomerModelOperations
	Queue          *QueueOperations
	Jobs           *JobOperations
	Status         *StatusOperations
	Webhooks       *WebhookOperations
	Settings       *SettingsOperations
	Preferences    *PreferenceOperations
	Notifications  *NotificationOperations
}

func NewStore(conn *sql.DB) *Store {
	return newStore(conn, nil)
}

func newStore(conn *sql.DB, tx *sql.Tx) *Store {
	var q Querier = conn
	if tx != nil {
		q = tx
	}
	return &Store{
		db:             conn,
		tx:             tx,
		Printers:       &PrinterOperations{q: q},
		CustomerModels: &CustomerModelOperations{q: q},
		Queue:          &QueueOperations{q: q},
		Jobs:           &JobOperations{q: q},
		Status:         &StatusOperations{q: q},
		Webhooks:       &WebhookOperations{q: q},
		Settings:       &SettingsOperations{q: q},
		Preferences:    &PreferenceOperations{q: q},
		Notifications:  &NotificationOperations{q: q},
	}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// InTx runs fn inside a transaction. fn must only use the Store it is given;
// the pool holds a single connection, so touching the outer Store from inside
// fn blocks forever. A Store that is already transactional runs fn directly.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(newStore(s.db, tx)); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func now() time.Time {
	return time.Now().UTC()
}

func jsonText(raw json.RawMessage, fallback string) string {
	if len(raw) == 0 {
		return fallback
	}
	return string(raw)
}

func execAffected(ctx context.Context, q Querier, what, query string, args ...any) (bool, error) {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", what, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

func countGrouped(ctx context.Context, q Querier, what, query string) (map[string]int64, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", what, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("failed to scan %s count: %w", what, err)
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

func orderDirection(dir string) string {
	if strings.EqualFold(dir, "asc") {
		return "ASC"
	}
	return "DESC"
}

type PrinterOperations struct {
	q Querier
}

func scanPrinter(row rowScanner) (*Printer, error) {
	p := &Printer{}
	var caps string
	if err := row.Scan(
		&p.ID, &p.Name, &p.Model, &p.Status, &caps, &p.CurrentJobID,
		&p.Notes, &p.LastMaintenance, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Capabilities = json.RawMessage(caps)
	return p, nil
}

func (o *PrinterOperations) CreatePrinter(ctx context.Context, p *Printer) error {
	ts := now()
	if p.Status == "" {
		p.Status = "available"
	}
	result, err := o.q.ExecContext(ctx, InsertPrinter,
		p.Name, p.Model, p.Status, jsonText(p.Capabilities, "{}"), p.Notes, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to create printer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get printer id: %w", err)
	}
	p.ID = id
	p.CreatedAt, p.UpdatedAt = ts, ts
	return nil
}

func (o *PrinterOperations) GetPrinterByID(ctx context.Context, id int64) (*Printer, error) {
	p, err := scanPrinter(o.q.QueryRowContext(ctx, GetPrinterByID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get printer: %w", err)
	}
	return p, nil
}

// ListPrinters returns every printer, or only those in status when it is set.
func (o *PrinterOperations) ListPrinters(ctx context.Context, status string) ([]*Printer, error) {
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = o.q.QueryContext(ctx, ListPrintersByStatus, status)
	} else {
		rows, err = o.q.QueryContext(ctx, ListPrinters)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list printers: %w", err)
	}
	defer rows.Close()

	var printers []*Printer
	for rows.Next() {
		p, err := scanPrinter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan printer: %w", err)
		}
		printers = append(printers, p)
	}
	return printers, rows.Err()
}

func (o *PrinterOperations) UpdatePrinter(ctx context.Context, p *Printer) error {
	p.UpdatedAt = now()
	_, err := o.q.ExecContext(ctx, UpdatePrinter,
		p.Name, p.Model, jsonText(p.Capabilities, "{}"), p.Notes, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update printer: %w", err)
	}
	return nil
}

// UpdatePrinterStatus only touches printers without a current job.
func (o *PrinterOperations) UpdatePrinterStatus(ctx context.Context, id int64, status string) (bool, error) {
	return execAffected(ctx, o.q, "update printer status", UpdatePrinterStatus, status, now(), id)
}

// SetCurrentJob points the printer at jobID and marks it busy, or clears the
// pointer and marks it available when jobID is nil.
func (o *PrinterOperations) SetCurrentJob(ctx context.Context, id int64, jobID *int64) error {
	status := "available"
	if jobID != nil {
		status = "busy"
	}
	_, err := o.q.ExecContext(ctx, SetPrinterCurrentJob, status, jobID, now(), id)
	if err != nil {
		return fmt.Errorf("failed to set current job: %w", err)
	}
	return nil
}

func (o *PrinterOperations) AcquirePrinter(ctx context.Context, id, jobID int64) (bool, error) {
	return execAffected(ctx, o.q, "acquire printer", AcquirePrinter, jobID, now(), id)
}

// ReleasePrinter frees the printer only while it still points at jobID.
func (o *PrinterOperations) ReleasePrinter(ctx context.Context, id, jobID int64) (bool, error) {
	return execAffected(ctx, o.q, "release printer", ReleasePrinter, now(), id, jobID)
}

func (o *PrinterOperations) RegisterMaintenance(ctx context.Context, id int64, notes string, at time.Time) (bool, error) {
	return execAffected(ctx, o.q, "register maintenance", RegisterPrinterMaintenance, at, notes, now(), id)
}

func (o *PrinterOperations) DeletePrinter(ctx context.Context, id int64) (bool, error) {
	return execAffected(ctx, o.q, "delete printer", DeletePrinter, id)
}

func (o *PrinterOperations) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return countGrouped(ctx, o.q, "printers by status", CountPrintersByStatus)
}

func (o *PrinterOperations) CountByModel(ctx context.Context) (map[string]int64, error) {
	return countGrouped(ctx, o.q, "printers by model", CountPrintersByModel)
}

type CustomerModelOperations struct {
	q Querier
}

func (o *CustomerModelOperations) CreateCustomerModel(ctx context.Context, m *CustomerModel) error {
	if m.Status == "" {
		m.Status = "pending_review"
	}
	result, err := o.q.ExecContext(ctx, InsertCustomerModel, m.UserID, m.OriginalName, m.Status)
	if err != nil {
		return fmt.Errorf("failed to create customer model: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get customer model id: %w", err)
	}
	m.ID = id
	return nil
}

func (o *CustomerModelOperations) GetCustomerModel(ctx context.Context, id int64) (*CustomerModel, error) {
	m := &CustomerModel{}
	err := o.q.QueryRowContext(ctx, GetCustomerModelByID, id).Scan(
		&m.ID, &m.UserID, &m.OriginalName, &m.Status, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get customer model: %w", err)
	}
	return m, nil
}

func (o *CustomerModelOperations) UpdateCustomerModelStatus(ctx context.Context, id int64, status string) error {
	_, err := o.q.ExecContext(ctx, UpdateCustomerModelStatus, status, id)
	if err != nil {
		return fmt.Errorf("failed to update customer model status: %w", err)
	}
	return nil
}

type QueueOperations struct {
	q Querier
}

func scanQueueEntry(row rowScanner) (*QueueEntry, error) {
	e := &QueueEntry{}
	var settings string
	if err := row.Scan(
		&e.ID, &e.ModelID, &e.UserID, &e.Status, &e.Priority,
		&e.Notes, &settings, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.PrintSettings = json.RawMessage(settings)
	return e, nil
}

func scanQueueEntries(rows *sql.Rows) ([]*QueueEntry, error) {
	var entries []*QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (o *QueueOperations) CreateEntry(ctx context.Context, e *QueueEntry) error {
	ts := now()
	if e.Status == "" {
		e.Status = "pending"
	}
	result, err := o.q.ExecContext(ctx, InsertQueueEntry,
		e.ModelID, e.UserID, e.Status, e.Priority, e.Notes, jsonText(e.PrintSettings, "{}"), ts, ts)
	if err != nil {
		return fmt.Errorf("failed to create queue entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get queue entry id: %w", err)
	}
	e.ID = id
	e.CreatedAt, e.UpdatedAt = ts, ts
	return nil
}

func (o *QueueOperations) GetEntry(ctx context.Context, id int64) (*QueueEntry, error) {
	e, err := scanQueueEntry(o.q.QueryRowContext(ctx, GetQueueEntryByID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	return e, nil
}

func (o *QueueOperations) ListPending(ctx context.Context) ([]*QueueEntry, error) {
	rows, err := o.q.QueryContext(ctx, ListPendingQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending queue entries: %w", err)
	}
	defer rows.Close()

	return scanQueueEntries(rows)
}

var queueSortColumns = map[string]bool{
	"priority":   true,
	"created_at": true,
	"updated_at": true,
}

func (o *QueueOperations) ListEntries(ctx context.Context, filter QueueFilter) ([]*QueueEntry, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.UserID > 0 {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.ModelID > 0 {
		conditions = append(conditions, "model_id = ?")
		args = append(args, filter.ModelID)
	}
	if filter.FromDate != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.FromDate.UTC())
	}
	if filter.ToDate != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, filter.ToDate.UTC())
	}

	orderBy := "priority"
	if queueSortColumns[filter.OrderBy] {
		orderBy = filter.OrderBy
	}

	query := "SELECT " + queueColumns + " FROM print_queue"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY %s %s", orderBy, orderDirection(filter.OrderDir))
	if orderBy != "created_at" {
		query += ", created_at ASC"
	}
	query += ", id ASC"

	limit := 50
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	if limit > 100 {
		limit = 100
	}

	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue entries: %w", err)
	}
	defer rows.Close()

	return scanQueueEntries(rows)
}

// UpdateStatus moves the entry from one status to another. It reports false
// when the stored status no longer matches from.
func (o *QueueOperations) UpdateStatus(ctx context.Context, id int64, from, to, notes string) (bool, error) {
	return execAffected(ctx, o.q, "update queue status", UpdateQueueStatus, to, notes, now(), id, from)
}

func (o *QueueOperations) UpdatePriority(ctx context.Context, id int64, from, to int) (bool, error) {
	return execAffected(ctx, o.q, "update queue priority", UpdateQueuePriority, to, now(), id, from)
}

func (o *QueueOperations) DeleteEntry(ctx context.Context, id int64) error {
	_, err := o.q.ExecContext(ctx, DeleteQueueEntry, id)
	if err != nil {
		return fmt.Errorf("failed to delete queue entry: %w", err)
	}
	return nil
}

func (o *QueueOperations) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return countGrouped(ctx, o.q, "queue entries by status", CountQueueByStatus)
}

func (o *QueueOperations) AddHistory(ctx context.Context, h *QueueHistoryEvent) error {
	h.CreatedAt = now()
	result, err := o.q.ExecContext(ctx, InsertQueueHistory,
		h.QueueID, h.EventType, h.PreviousValue, h.NewValue, h.Description, h.ActorID, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add queue history: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get queue history id: %w", err)
	}
	h.ID = id
	return nil
}

func (o *QueueOperations) ListHistory(ctx context.Context, queueID int64) ([]*QueueHistoryEvent, error) {
	rows, err := o.q.QueryContext(ctx, ListQueueHistory, queueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue history: %w", err)
	}
	defer rows.Close()

	var events []*QueueHistoryEvent
	for rows.Next() {
		h := &QueueHistoryEvent{}
		if err := rows.Scan(
			&h.ID, &h.QueueID, &h.EventType, &h.PreviousValue, &h.NewValue,
			&h.Description, &h.ActorID, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue history: %w", err)
		}
		events = append(events, h)
	}
	return events, rows.Err()
}

type JobOperations struct {
	q Querier
}

const qualifiedJobColumns = `j.id, j.queue_id, j.printer_id, j.status, j.scheduled_start_time, j.start_time, j.estimated_end_time, j.actual_end_time, j.progress, j.material_used, j.notes, j.created_at, j.updated_at`

func scanJob(row rowScanner) (*PrintJob, error) {
	j := &PrintJob{}
	err := row.Scan(
		&j.ID, &j.QueueID, &j.PrinterID, &j.Status, &j.ScheduledStartTime,
		&j.StartTime, &j.EstimatedEndTime, &j.ActualEndTime, &j.Progress,
		&j.MaterialUsed, &j.Notes, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func scanJobs(rows *sql.Rows) ([]*PrintJob, error) {
	var jobs []*PrintJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (o *JobOperations) CreateJob(ctx context.Context, j *PrintJob) error {
	ts := now()
	if j.Status == "" {
		j.Status = "pending"
	}
	result, err := o.q.ExecContext(ctx, InsertJob,
		j.QueueID, j.PrinterID, j.Status, j.ScheduledStartTime, j.EstimatedEndTime, j.Notes, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get job id: %w", err)
	}
	j.ID = id
	j.CreatedAt, j.UpdatedAt = ts, ts
	return nil
}

func (o *JobOperations) GetJobByID(ctx context.Context, id int64) (*PrintJob, error) {
	j, err := scanJob(o.q.QueryRowContext(ctx, GetJobByID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

func (o *JobOperations) GetJobByQueueID(ctx context.Context, queueID int64) (*PrintJob, error) {
	j, err := scanJob(o.q.QueryRowContext(ctx, GetJobByQueueID, queueID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get job by queue id: %w", err)
	}
	return j, nil
}

// UpdateJobState writes the status, timing and progress columns of j,
// provided the stored status still equals expected.
func (o *JobOperations) UpdateJobState(ctx context.Context, j *PrintJob, expected string) (bool, error) {
	j.UpdatedAt = now()
	return execAffected(ctx, o.q, "update job status", UpdateJobState,
		j.Status, j.StartTime, j.EstimatedEndTime, j.ActualEndTime, j.Progress, j.Notes, j.UpdatedAt,
		j.ID, expected)
}

func (o *JobOperations) UpdateProgress(ctx context.Context, id int64, progress float64) (bool, error) {
	return execAffected(ctx, o.q, "update job progress", UpdateJobProgress, progress, now(), id)
}

func (o *JobOperations) UpdateMaterialUsed(ctx context.Context, id int64, grams float64) (bool, error) {
	return execAffected(ctx, o.q, "update material used", UpdateJobMaterial, grams, now(), id)
}

var jobSortColumns = map[string]bool{
	"created_at":         true,
	"start_time":         true,
	"estimated_end_time": true,
	"progress":           true,
}

func (o *JobOperations) ListJobs(ctx context.Context, filter JobFilter) ([]*PrintJob, error) {
	var conditions []string
	var args []interface{}

	if filter.PrinterID > 0 {
		conditions = append(conditions, "j.printer_id = ?")
		args = append(args, filter.PrinterID)
	}
	if filter.UserID > 0 {
		conditions = append(conditions, "q.user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "j.status = ?")
		args = append(args, filter.Status)
	}
	if filter.FromDate != nil {
		conditions = append(conditions, "j.created_at >= ?")
		args = append(args, filter.FromDate.UTC())
	}
	if filter.ToDate != nil {
		conditions = append(conditions, "j.created_at <= ?")
		args = append(args, filter.ToDate.UTC())
	}

	orderBy := "created_at"
	if jobSortColumns[filter.OrderBy] {
		orderBy = filter.OrderBy
	}

	query := "SELECT " + qualifiedJobColumns + " FROM print_jobs j LEFT JOIN print_queue q ON q.id = j.queue_id"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY j.%s %s, j.id ASC", orderBy, orderDirection(filter.OrderDir))

	limit := 100
	if filter.Limit > 0 {
		limit = filter.Limit
	}

	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (o *JobOperations) ListCurrent(ctx context.Context) ([]*PrintJob, error) {
	rows, err := o.q.QueryContext(ctx, ListCurrentJobs)
	if err != nil {
		return nil, fmt.Errorf("failed to list current jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (o *JobOperations) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return countGrouped(ctx, o.q, "jobs by status", CountJobsByStatus)
}

func (o *JobOperations) ListCompletedDurations(ctx context.Context) ([]JobDuration, error) {
	rows, err := o.q.QueryContext(ctx, ListCompletedJobDurations)
	if err != nil {
		return nil, fmt.Errorf("failed to list job durations: %w", err)
	}
	defer rows.Close()

	var durations []JobDuration
	for rows.Next() {
		var d JobDuration
		if err := rows.Scan(&d.StartTime, &d.EndTime); err != nil {
			return nil, fmt.Errorf("failed to scan job duration: %w", err)
		}
		durations = append(durations, d)
	}
	return durations, rows.Err()
}

func (o *JobOperations) SumMaterialUsed(ctx context.Context) (float64, error) {
	var total float64
	if err := o.q.QueryRowContext(ctx, SumMaterialUsed).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum material used: %w", err)
	}
	return total, nil
}

type StatusOperations struct {
	q Querier
}

func scanStatus(row rowScanner) (*StatusRecord, error) {
	r := &StatusRecord{}
	err := row.Scan(
		&r.ID, &r.OrderID, &r.ProductID, &r.QueueID, &r.PrinterID, &r.Status,
		&r.ProgressPercentage, &r.StartedAt, &r.EstimatedCompletion, &r.CompletedAt,
		&r.TotalPrintTimeSeconds, &r.ElapsedPrintTimeSeconds, &r.Notes,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (o *StatusOperations) queryStatuses(ctx context.Context, what, query string, args ...any) ([]*StatusRecord, error) {
	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", what, err)
	}
	defer rows.Close()

	var records []*StatusRecord
	for rows.Next() {
		r, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan print status: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (o *StatusOperations) CreateStatus(ctx context.Context, r *StatusRecord) error {
	ts := now()
	if r.Status == "" {
		r.Status = "pending"
	}
	result, err := o.q.ExecContext(ctx, InsertStatus,
		r.OrderID, r.ProductID, r.QueueID, r.PrinterID, r.Status,
		r.TotalPrintTimeSeconds, r.Notes, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to create print status: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get print status id: %w", err)
	}
	r.ID = id
	r.CreatedAt, r.UpdatedAt = ts, ts
	return nil
}

func (o *StatusOperations) GetStatus(ctx context.Context, id int64) (*StatusRecord, error) {
	r, err := scanStatus(o.q.QueryRowContext(ctx, GetStatusByID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get print status: %w", err)
	}
	return r, nil
}

func (o *StatusOperations) GetByOrderProduct(ctx context.Context, orderID, productID int64) (*StatusRecord, error) {
	r, err := scanStatus(o.q.QueryRowContext(ctx, GetStatusByOrderProduct, orderID, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get print status by order: %w", err)
	}
	return r, nil
}

func (o *StatusOperations) ListByOrder(ctx context.Context, orderID int64) ([]*StatusRecord, error) {
	return o.queryStatuses(ctx, "print status by order", ListStatusByOrder, orderID)
}

func (o *StatusOperations) ListByQueue(ctx context.Context, queueID int64) ([]*StatusRecord, error) {
	return o.queryStatuses(ctx, "print status by queue", ListStatusByQueue, queueID)
}

func (o *StatusOperations) ListActive(ctx context.Context, limit, offset int) ([]*StatusRecord, error) {
	return o.queryStatuses(ctx, "active print status", ListActiveStatus, limit, offset)
}

func (o *StatusOperations) ListRecentlyCompleted(ctx context.Context, since time.Time, limit int) ([]*StatusRecord, error) {
	return o.queryStatuses(ctx, "completed print status", ListRecentlyCompletedStatus, since.UTC(), limit)
}

// UpdateState writes the mutable columns of r, provided the stored status
// still equals expected.
func (o *StatusOperations) UpdateState(ctx context.Context, r *StatusRecord, expected string) (bool, error) {
	r.UpdatedAt = now()
	return execAffected(ctx, o.q, "update print status", UpdateStatusState,
		r.Status, r.PrinterID, r.ProgressPercentage, r.StartedAt, r.EstimatedCompletion,
		r.CompletedAt, r.ElapsedPrintTimeSeconds, r.Notes, r.UpdatedAt,
		r.ID, expected)
}

func (o *StatusOperations) AddUpdate(ctx context.Context, u *StatusUpdate) error {
	u.CreatedAt = now()
	if u.UpdatedBy == "" {
		u.UpdatedBy = "system"
	}
	result, err := o.q.ExecContext(ctx, InsertStatusUpdate,
		u.StatusID, u.PreviousStatus, u.NewStatus, u.PreviousProgress, u.NewProgress,
		u.UpdatedBy, u.Message, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add status update: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get status update id: %w", err)
	}
	u.ID = id
	return nil
}

func (o *StatusOperations) ListUpdates(ctx context.Context, statusID int64, limit int) ([]*StatusUpdate, error) {
	rows, err := o.q.QueryContext(ctx, ListStatusUpdates, statusID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list status updates: %w", err)
	}
	defer rows.Close()

	var updates []*StatusUpdate
	for rows.Next() {
		u := &StatusUpdate{}
		if err := rows.Scan(
			&u.ID, &u.StatusID, &u.PreviousStatus, &u.NewStatus, &u.PreviousProgress,
			&u.NewProgress, &u.UpdatedBy, &u.Message, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status update: %w", err)
		}
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

func (o *StatusOperations) AddMessage(ctx context.Context, m *StatusMessage) error {
	m.CreatedAt = now()
	result, err := o.q.ExecContext(ctx, InsertStatusMessage,
		m.StatusID, m.Message, m.Type, m.VisibleToCustomer, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add status message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get status message id: %w", err)
	}
	m.ID = id
	return nil
}

func (o *StatusOperations) ListMessages(ctx context.Context, statusID int64, visibleOnly bool, limit int) ([]*StatusMessage, error) {
	rows, err := o.q.QueryContext(ctx, ListStatusMessages, statusID, visibleOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list status messages: %w", err)
	}
	defer rows.Close()

	var messages []*StatusMessage
	for rows.Next() {
		m := &StatusMessage{}
		if err := rows.Scan(
			&m.ID, &m.StatusID, &m.Message, &m.Type, &m.VisibleToCustomer, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (o *StatusOperations) AddMetric(ctx context.Context, m *MetricSample) error {
	m.RecordedAt = now()
	var additional interface{}
	if len(m.AdditionalData) > 0 {
		additional = string(m.AdditionalData)
	}
	result, err := o.q.ExecContext(ctx, InsertMetric,
		m.StatusID, m.HotendTemp, m.BedTemp, m.SpeedPercentage, m.FanSpeedPercentage,
		m.LayerHeight, m.CurrentLayer, m.TotalLayers, m.FilamentUsedMM,
		m.PrintTimeRemainingSeconds, additional, m.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to record metrics: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get metrics id: %w", err)
	}
	m.ID = id
	return nil
}

func (o *StatusOperations) ListRecentMetrics(ctx context.Context, statusID int64, limit int) ([]*MetricSample, error) {
	rows, err := o.q.QueryContext(ctx, ListRecentMetrics, statusID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	defer rows.Close()

	var samples []*MetricSample
	for rows.Next() {
		m := &MetricSample{}
		var additional sql.NullString
		if err := rows.Scan(
			&m.ID, &m.StatusID, &m.HotendTemp, &m.BedTemp, &m.SpeedPercentage,
			&m.FanSpeedPercentage, &m.LayerHeight, &m.CurrentLayer, &m.TotalLayers,
			&m.FilamentUsedMM, &m.PrintTimeRemainingSeconds, &additional, &m.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan metrics: %w", err)
		}
		if additional.Valid {
			m.AdditionalData = json.RawMessage(additional.String)
		}
		samples = append(samples, m)
	}
	return samples, rows.Err()
}

// LatestMetric returns sql.ErrNoRows when nothing has been recorded yet.
func (o *StatusOperations) LatestMetric(ctx context.Context, statusID int64) (*MetricSample, error) {
	samples, err := o.ListRecentMetrics(ctx, statusID, 1)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, sql.ErrNoRows
	}
	return samples[0], nil
}

type WebhookOperations struct {
	q Querier
}

func (o *WebhookOperations) CreateWebhook(ctx context.Context, w *Webhook) error {
	result, err := o.q.ExecContext(ctx, InsertWebhook,
		w.Name, w.URL, w.Secret, w.EventsJSON, w.Enabled)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get webhook id: %w", err)
	}
	w.ID = id
	return nil
}

func (o *WebhookOperations) GetWebhookByID(ctx context.Context, id int64) (*Webhook, error) {
	w := &Webhook{}
	err := o.q.QueryRowContext(ctx, GetWebhookByID, id).Scan(
		&w.ID, &w.Name, &w.URL, &w.Secret, &w.EventsJSON, &w.Enabled, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return w, nil
}

func (o *WebhookOperations) queryWebhooks(ctx context.Context, query string, args ...any) ([]*Webhook, error) {
	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []*Webhook
	for rows.Next() {
		w := &Webhook{}
		if err := rows.Scan(
			&w.ID, &w.Name, &w.URL, &w.Secret, &w.EventsJSON, &w.Enabled, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

func (o *WebhookOperations) ListWebhooks(ctx context.Context) ([]*Webhook, error) {
	return o.queryWebhooks(ctx, ListWebhooks)
}

func (o *WebhookOperations) ListActiveWebhooksForEvent(ctx context.Context, event string) ([]*Webhook, error) {
	pattern := "%\"" + event + "\"%"
	return o.queryWebhooks(ctx, ListWebhooksForEvent, pattern)
}

func (o *WebhookOperations) UpdateWebhook(ctx context.Context, w *Webhook) error {
	_, err := o.q.ExecContext(ctx, UpdateWebhook,
		w.Name, w.URL, w.Secret, w.EventsJSON, w.Enabled, w.ID)
	if err != nil {
		return fmt.Errorf("failed to update webhook: %w", err)
	}
	return nil
}

func (o *WebhookOperations) DeleteWebhook(ctx context.Context, id int64) error {
	_, err := o.q.ExecContext(ctx, DeleteWebhook, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}

type SettingsOperations struct {
	q Querier
}

func (o *SettingsOperations) GetSetting(ctx context.Context, key string) (*Setting, error) {
	s := &Setting{Key: key}
	err := o.q.QueryRowContext(ctx, GetSetting, key).Scan(&s.Value, &s.Encrypted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return s, nil
}

func (o *SettingsOperations) SetSetting(ctx context.Context, key, value string, encrypted bool) error {
	_, err := o.q.ExecContext(ctx, SetSetting, key, value, encrypted, value, encrypted)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

func (o *SettingsOperations) DeleteSetting(ctx context.Context, key string) error {
	_, err := o.q.ExecContext(ctx, DeleteSetting, key)
	if err != nil {
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	return nil
}

type PreferenceOperations struct {
	q Querier
}

func (o *PreferenceOperations) GetPreferences(ctx context.Context, userID int64) (*NotificationPreferences, error) {
	p := &NotificationPreferences{}
	err := o.q.QueryRowContext(ctx, GetPreferences, userID).Scan(
		&p.UserID, &p.NotifyOnStart, &p.NotifyOnComplete, &p.NotifyOnFailure,
		&p.NotifyOnPause, &p.NotifyOnProgress, &p.ProgressInterval, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get notification preferences: %w", err)
	}
	return p, nil
}

func (o *PreferenceOperations) SavePreferences(ctx context.Context, p *NotificationPreferences) error {
	p.UpdatedAt = now()
	_, err := o.q.ExecContext(ctx, UpsertPreferences,
		p.UserID, p.NotifyOnStart, p.NotifyOnComplete, p.NotifyOnFailure,
		p.NotifyOnPause, p.NotifyOnProgress, p.ProgressInterval, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save notification preferences: %w", err)
	}
	return nil
}

type NotificationOperations struct {
	q Querier
}

func (o *NotificationOperations) CreateNotification(ctx context.Context, n *NotificationRecord) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now()
	}
	n.Status = "unread"
	_, err := o.q.ExecContext(ctx, InsertNotification,
		n.ID, n.UserID, n.Audience, n.Event, n.Type, n.Title, n.Message,
		n.RelatedType, n.RelatedID, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (o *NotificationOperations) queryNotifications(ctx context.Context, query string, args ...any) ([]*NotificationRecord, error) {
	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var records []*NotificationRecord
	for rows.Next() {
		n := &NotificationRecord{}
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.Audience, &n.Event, &n.Type, &n.Title, &n.Message,
			&n.RelatedType, &n.RelatedID, &n.Status, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		records = append(records, n)
	}
	return records, rows.Err()
}

func (o *NotificationOperations) ListByUser(ctx context.Context, userID int64, limit int) ([]*NotificationRecord, error) {
	return o.queryNotifications(ctx, ListNotificationsByUser, userID, limit)
}

func (o *NotificationOperations) ListAdmin(ctx context.Context, limit int) ([]*NotificationRecord, error) {
	return o.queryNotifications(ctx, ListAdminNotifications, limit)
}
