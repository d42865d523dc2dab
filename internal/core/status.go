package core

type PrinterStatus string

const (
	PrinterAvailable   PrinterStatus = "available"
	PrinterBusy        PrinterStatus = "busy"
	PrinterMaintenance PrinterStatus = "maintenance"
	PrinterOffline     PrinterStatus = "offline"
)

func (s PrinterStatus) Valid() bool {
	switch s {
	case PrinterAvailable, PrinterBusy, PrinterMaintenance, PrinterOffline:
		return true
	}
	return false
}

type QueueStatus string

const (
	QueuePending   QueueStatus = "pending"
	QueueAssigned  QueueStatus = "assigned"
	QueuePrinting  QueueStatus = "printing"
	QueueCompleted QueueStatus = "completed"
	QueueFailed    QueueStatus = "failed"
	QueueCancelled QueueStatus = "cancelled"
)

var queueTransitions = map[QueueStatus][]QueueStatus{
	QueuePending:   {QueueAssigned, QueueCancelled},
	QueueAssigned:  {QueuePrinting, QueuePending, QueueCancelled},
	QueuePrinting:  {QueueCompleted, QueueFailed, QueueCancelled},
	QueueCompleted: {},
	QueueFailed:    {QueuePending},
	QueueCancelled: {QueuePending},
}

func (s QueueStatus) Valid() bool {
	_, ok := queueTransitions[s]
	return ok
}

// CanQueueTransition reports whether a queue entry may move from one status
// to another. Staying in the same status is always allowed.
func CanQueueTransition(from, to QueueStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range queueTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type JobStatus string

const (
	JobPending        JobStatus = "pending"
	JobPreparing      JobStatus = "preparing"
	JobPrinting       JobStatus = "printing"
	JobPostProcessing JobStatus = "post-processing"
	JobCompleted      JobStatus = "completed"
	JobFailed         JobStatus = "failed"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobPending:        {JobPreparing, JobPrinting, JobFailed},
	JobPreparing:      {JobPrinting, JobFailed},
	JobPrinting:       {JobPostProcessing, JobCompleted, JobFailed},
	JobPostProcessing: {JobCompleted, JobFailed},
	JobCompleted:      {},
	JobFailed:         {JobPending},
}

func (s JobStatus) Valid() bool {
	_, ok := jobTransitions[s]
	return ok
}

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Active is true while the job occupies its printer's build plate.
func (s JobStatus) Active() bool {
	return s == JobPreparing || s == JobPrinting || s == JobPostProcessing
}

func CanJobTransition(from, to JobStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TrackStatus is the customer facing status of a StatusRecord.
type TrackStatus string

const (
	TrackPending   TrackStatus = "pending"
	TrackPreparing TrackStatus = "preparing"
	TrackPrinting  TrackStatus = "printing"
	TrackPaused    TrackStatus = "paused"
	TrackCompleted TrackStatus = "completed"
	TrackFailed    TrackStatus = "failed"
	TrackCanceled  TrackStatus = "canceled"
)

func (s TrackStatus) Valid() bool {
	switch s {
	case TrackPending, TrackPreparing, TrackPrinting, TrackPaused,
		TrackCompleted, TrackFailed, TrackCanceled:
		return true
	}
	return false
}

func (s TrackStatus) Terminal() bool {
	return s == TrackCompleted || s == TrackFailed || s == TrackCanceled
}

// MessageType returns the status message type recorded alongside a write
// into s.
func (s TrackStatus) MessageType() string {
	switch s {
	case TrackCompleted:
		return MessageSuccess
	case TrackFailed:
		return MessageError
	case TrackPaused, TrackCanceled:
		return MessageWarning
	default:
		return MessageInfo
	}
}

const (
	MessageInfo    = "info"
	MessageWarning = "warning"
	MessageError   = "error"
	MessageSuccess = "success"
)

func validMessageType(t string) bool {
	switch t {
	case MessageInfo, MessageWarning, MessageError, MessageSuccess:
		return true
	}
	return false
}
