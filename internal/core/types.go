package core

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/orrn/printfarm/internal/db"
	"github.com/orrn/printfarm/internal/notify"
)

// Notifier is the fire-and-forget notification primitive. Implementations
// must not block and must not touch the caller's transaction.
type Notifier interface {
	Notify(n *notify.Notification)
	NotifyAdmins(n *notify.Notification)
}

// ModelApprovals reports who owns a model and whether it passed review.
type ModelApprovals interface {
	ApprovedOwner(ctx context.Context, modelID int64) (ownerID int64, approved bool, err error)
}

type PreferenceLookup interface {
	Preferences(ctx context.Context, userID int64) (*db.NotificationPreferences, error)
}

// StatusCache holds the latest live snapshot per status record. Get returns
// nil without error on a miss.
type StatusCache interface {
	Put(ctx context.Context, snap *LiveStatus) error
	Get(ctx context.Context, statusID int64) (*LiveStatus, error)
}

// Broadcaster pushes live snapshots to connected dashboards.
type Broadcaster interface {
	BroadcastStatus(snap *LiveStatus)
}

type nopNotifier struct{}

func (nopNotifier) Notify(*notify.Notification)       {}
func (nopNotifier) NotifyAdmins(*notify.Notification) {}

// StoreApprovals answers approval questions from the customer_models table.
type StoreApprovals struct {
	store *db.Store
}

func NewStoreApprovals(store *db.Store) *StoreApprovals {
	return &StoreApprovals{store: store}
}

func (a *StoreApprovals) ApprovedOwner(ctx context.Context, modelID int64) (int64, bool, error) {
	m, err := a.store.CustomerModels.GetCustomerModel(ctx, modelID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return m.UserID, m.Status == "approved", nil
}

// StorePreferences reads notification_preferences, falling back to the
// defaults for users who never saved any.
type StorePreferences struct {
	store *db.Store
}

func NewStorePreferences(store *db.Store) *StorePreferences {
	return &StorePreferences{store: store}
}

func (p *StorePreferences) Preferences(ctx context.Context, userID int64) (*db.NotificationPreferences, error) {
	prefs, err := p.store.Preferences.GetPreferences(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return db.DefaultPreferences(userID), nil
		}
		return nil, err
	}
	return prefs, nil
}

type PrinterUpdate struct {
	Name         *string
	Model        *string
	Capabilities ValueMap
	Notes        *string
}

type PrinterStats struct {
	Total               int64            `json:"total"`
	ByStatus            map[string]int64 `json:"by_status"`
	ByModel             map[string]int64 `json:"by_model"`
	TotalPrints         int64            `json:"total_prints"`
	AvgPrintsPerPrinter float64          `json:"avg_prints_per_printer"`
}

type EnqueueRequest struct {
	ModelID  int64
	UserID   int64
	Priority int
	Notes    string
	Settings ValueMap
}

type QueueStats struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
}

type JobStats struct {
	Total             int64            `json:"total"`
	ByStatus          map[string]int64 `json:"by_status"`
	AvgPrintHours     float64          `json:"avg_print_hours"`
	CompletionRate    float64          `json:"completion_rate"`
	TotalMaterialUsed float64          `json:"total_material_used"`
}

type CreateStatusRequest struct {
	OrderID               int64
	ProductID             int64
	QueueID               int64
	PrinterID             *int64
	TotalPrintTimeSeconds *int64
	Notes                 string
}

// MetricInput is one telemetry sample. Absent fields stay NULL.
type MetricInput struct {
	HotendTemp                *float64               `json:"hotend_temp" validate:"omitempty,gte=-50,lte=600"`
	BedTemp                   *float64               `json:"bed_temp" validate:"omitempty,gte=-50,lte=300"`
	SpeedPercentage           *float64               `json:"speed_percentage" validate:"omitempty,gte=0,lte=1000"`
	FanSpeedPercentage        *float64               `json:"fan_speed_percentage" validate:"omitempty,gte=0,lte=100"`
	LayerHeight               *float64               `json:"layer_height" validate:"omitempty,gt=0"`
	CurrentLayer              *int64                 `json:"current_layer" validate:"omitempty,gte=0"`
	TotalLayers               *int64                 `json:"total_layers" validate:"omitempty,gte=0"`
	FilamentUsedMM            *float64               `json:"filament_used_mm" validate:"omitempty,gte=0"`
	PrintTimeRemainingSeconds *int64                 `json:"print_time_remaining_seconds" validate:"omitempty,gte=0"`
	AdditionalData            map[string]interface{} `json:"additional_data"`
}

// LiveStatus is the cached view of a status record served to dashboards.
type LiveStatus struct {
	StatusID            int64            `json:"status_id"`
	OrderID             int64            `json:"order_id"`
	ProductID           int64            `json:"product_id"`
	QueueID             int64            `json:"queue_id"`
	PrinterID           *int64           `json:"printer_id"`
	Status              string           `json:"status"`
	Progress            float64          `json:"progress"`
	EstimatedCompletion *time.Time       `json:"estimated_completion"`
	ElapsedSeconds      *int64           `json:"elapsed_seconds"`
	LatestMetrics       *db.MetricSample `json:"latest_metrics,omitempty"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

type DetailedStatus struct {
	Record        *db.StatusRecord    `json:"record"`
	LatestMetrics *db.MetricSample    `json:"latest_metrics"`
	Messages      []*db.StatusMessage `json:"messages"`
	Updates       []*db.StatusUpdate  `json:"updates"`
}
