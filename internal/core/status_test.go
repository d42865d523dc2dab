package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanQueueTransition(t *testing.T) {
	tests := []struct {
		from, to QueueStatus
		want     bool
	}{
		{QueuePending, QueueAssigned, true},
		{QueuePending, QueuePrinting, false},
		{QueueAssigned, QueuePending, true},
		{QueuePrinting, QueueCompleted, true},
		{QueuePrinting, QueuePending, false},
		{QueueCompleted, QueuePending, false},
		{QueueCompleted, QueueCompleted, true},
		{QueueFailed, QueuePending, true},
		{QueueCancelled, QueueAssigned, false},
		{QueuePending, "archived", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanQueueTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestCanJobTransition(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobPending, JobPreparing, true},
		{JobPending, JobPrinting, true},
		{JobPending, JobCompleted, false},
		{JobPrinting, JobPostProcessing, true},
		{JobPrinting, JobPrinting, true},
		{JobPostProcessing, JobPrinting, false},
		{JobCompleted, JobFailed, false},
		{JobFailed, JobPending, true},
		{JobFailed, JobPrinting, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanJobTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTrackStatusMessageType(t *testing.T) {
	assert.Equal(t, MessageSuccess, TrackCompleted.MessageType())
	assert.Equal(t, MessageError, TrackFailed.MessageType())
	assert.Equal(t, MessageWarning, TrackPaused.MessageType())
	assert.Equal(t, MessageWarning, TrackCanceled.MessageType())
	assert.Equal(t, MessageInfo, TrackPrinting.MessageType())

	assert.True(t, TrackCanceled.Terminal())
	assert.False(t, TrackPaused.Terminal())
	assert.False(t, TrackStatus("cancelled").Valid())
}
