package notify

import (
	"time"

	"github.com/google/uuid"
)

const (
	AudienceCustomer = "customer"
	AudienceAdmin    = "admin"
)

const (
	TypeInfo    = "info"
	TypeSuccess = "success"
	TypeWarning = "warning"
	TypeError   = "error"
)

const (
	EventQueueCreated         = "queue.created"
	EventQueueStatusChanged   = "queue.status_changed"
	EventQueuePriorityChanged = "queue.priority_changed"
	EventJobCreated           = "job.created"
	EventJobStatusChanged     = "job.status_changed"
	EventPrintStatusChanged   = "print_status.changed"
	EventPrintProgress        = "print_status.progress"

	EventWebhookTest = "webhook.test"
)

// Events lists what a webhook may subscribe to.
var Events = []string{
	EventQueueCreated,
	EventQueueStatusChanged,
	EventQueuePriorityChanged,
	EventJobCreated,
	EventJobStatusChanged,
	EventPrintStatusChanged,
	EventPrintProgress,
}

func ValidEvent(event string) bool {
	for _, e := range Events {
		if e == event {
			return true
		}
	}
	return false
}

type Notification struct {
	ID          string                 `json:"id"`
	Event       string                 `json:"event"`
	Audience    string                 `json:"audience"`
	UserID      int64                  `json:"user_id,omitempty"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Type        string                 `json:"type"`
	RelatedType string                 `json:"related_type,omitempty"`
	RelatedID   int64                  `json:"related_id,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

func (n *Notification) normalize(audience string) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Type == "" {
		n.Type = TypeInfo
	}
	n.Audience = audience
}

// adminCopy returns the operator mirror of n. It keeps the customer id so the
// inbox row still points at who the print belongs to.
func (n *Notification) adminCopy() *Notification {
	c := *n
	c.ID = ""
	c.normalize(AudienceAdmin)
	return &c
}
