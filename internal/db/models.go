package db

import (
	"encoding/json"
	"time"
)

type Printer struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Model           string          `json:"model"`
	Status          string          `json:"status"`
	Capabilities    json.RawMessage `json:"capabilities"`
	CurrentJobID    *int64          `json:"current_job_id"`
	Notes           string          `json:"notes"`
	LastMaintenance *time.Time      `json:"last_maintenance"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CustomerModel is the part of an uploaded model the queue needs to admit it.
type CustomerModel struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	OriginalName string    `json:"original_name"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

type QueueEntry struct {
	ID            int64           `json:"id"`
	ModelID       int64           `json:"model_id"`
	UserID        int64           `json:"user_id"`
	Status        string          `json:"status"`
	Priority      int             `json:"priority"`
	Notes         string          `json:"notes"`
	PrintSettings json.RawMessage `json:"print_settings"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type QueueHistoryEvent struct {
	ID            int64     `json:"id"`
	QueueID       int64     `json:"queue_id"`
	EventType     string    `json:"event_type"`
	PreviousValue *string   `json:"previous_value"`
	NewValue      *string   `json:"new_value"`
	Description   string    `json:"description"`
	ActorID       *int64    `json:"actor_id"`
	CreatedAt     time.Time `json:"created_at"`
}

type PrintJob struct {
	ID                 int64      `json:"id"`
	QueueID            int64      `json:"queue_id"`
	PrinterID          int64      `json:"printer_id"`
	Status             string     `json:"status"`
	ScheduledStartTime *time.Time `json:"scheduled_start_time"`
	StartTime          *time.Time `json:"start_time"`
	EstimatedEndTime   *time.Time `json:"estimated_end_time"`
	ActualEndTime      *time.Time `json:"actual_end_time"`
	Progress           float64    `json:"progress"`
	MaterialUsed       float64    `json:"material_used"`
	Notes              string     `json:"notes"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type StatusRecord struct {
	ID                      int64      `json:"id"`
	OrderID                 int64      `json:"order_id"`
	ProductID               int64      `json:"product_id"`
	QueueID                 int64      `json:"queue_id"`
	PrinterID               *int64     `json:"printer_id"`
	Status                  string     `json:"status"`
	ProgressPercentage      float64    `json:"progress_percentage"`
	StartedAt               *time.Time `json:"started_at"`
	EstimatedCompletion     *time.Time `json:"estimated_completion"`
	CompletedAt             *time.Time `json:"completed_at"`
	TotalPrintTimeSeconds   *int64     `json:"total_print_time_seconds"`
	ElapsedPrintTimeSeconds *int64     `json:"elapsed_print_time_seconds"`
	Notes                   string     `json:"notes"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

type StatusUpdate struct {
	ID               int64     `json:"id"`
	StatusID         int64     `json:"print_status_id"`
	PreviousStatus   *string   `json:"previous_status"`
	NewStatus        string    `json:"new_status"`
	PreviousProgress *float64  `json:"previous_progress"`
	NewProgress      float64   `json:"new_progress"`
	UpdatedBy        string    `json:"updated_by"`
	Message          string    `json:"message"`
	CreatedAt        time.Time `json:"created_at"`
}

type StatusMessage struct {
	ID                int64     `json:"id"`
	StatusID          int64     `json:"print_status_id"`
	Message           string    `json:"message"`
	Type              string    `json:"type"`
	VisibleToCustomer bool      `json:"is_visible_to_customer"`
	CreatedAt         time.Time `json:"created_at"`
}

type MetricSample struct {
	ID                        int64           `json:"id"`
	StatusID                  int64           `json:"print_status_id"`
	HotendTemp                *float64        `json:"hotend_temp"`
	BedTemp                   *float64        `json:"bed_temp"`
	SpeedPercentage           *float64        `json:"speed_percentage"`
	FanSpeedPercentage        *float64        `json:"fan_speed_percentage"`
	LayerHeight               *float64        `json:"layer_height"`
	CurrentLayer              *int64          `json:"current_layer"`
	TotalLayers               *int64          `json:"total_layers"`
	FilamentUsedMM            *float64        `json:"filament_used_mm"`
	PrintTimeRemainingSeconds *int64          `json:"print_time_remaining_seconds"`
	AdditionalData            json.RawMessage `json:"additional_data,omitempty"`
	RecordedAt                time.Time       `json:"recorded_at"`
}

type Webhook struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Secret     string    `json:"secret,omitempty"`
	EventsJSON string    `json:"events_json"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
}

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Encrypted bool      `json:"encrypted"`
	UpdatedAt time.Time `json:"updated_at"`
}

type NotificationPreferences struct {
	UserID           int64     `json:"user_id"`
	NotifyOnStart    bool      `json:"notify_on_start"`
	NotifyOnComplete bool      `json:"notify_on_complete"`
	NotifyOnFailure  bool      `json:"notify_on_failure"`
	NotifyOnPause    bool      `json:"notify_on_pause"`
	NotifyOnProgress bool      `json:"notify_on_progress"`
	ProgressInterval int       `json:"progress_interval"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DefaultPreferences is what a user without a stored row gets.
func DefaultPreferences(userID int64) *NotificationPreferences {
	return &NotificationPreferences{
		UserID:           userID,
		NotifyOnStart:    true,
		NotifyOnComplete: true,
		NotifyOnFailure:  true,
		ProgressInterval: 25,
	}
}

type NotificationRecord struct {
	ID          string    `json:"id"`
	UserID      *int64    `json:"user_id"`
	Audience    string    `json:"audience"`
	Event       string    `json:"event"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	RelatedType string    `json:"related_type"`
	RelatedID   *int64    `json:"related_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type QueueFilter struct {
	Status   string
	UserID   int64
	ModelID  int64
	FromDate *time.Time
	ToDate   *time.Time
	OrderBy  string
	OrderDir string
	Limit    int
	Offset   int
}

type JobFilter struct {
	PrinterID int64
	UserID    int64
	Status    string
	FromDate  *time.Time
	ToDate    *time.Time
	OrderBy   string
	OrderDir  string
	Limit     int
	Offset    int
}

// JobDuration is the start/end pair of a finished job.
type JobDuration struct {
	StartTime time.Time
	EndTime   time.Time
}
