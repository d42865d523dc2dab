package core

import "errors"

var (
	ErrPrinterNotFound      = errors.New("printer not found")
	ErrPrinterBusy          = errors.New("printer is busy")
	ErrPrinterUnavailable   = errors.New("printer is not available")
	ErrInvalidPrinterStatus = errors.New("invalid printer status")

	ErrQueueEntryNotFound = errors.New("queue entry not found")
	ErrQueueEntryInUse    = errors.New("queue entry has a print job")
	ErrModelNotApproved   = errors.New("model is not approved for this user")

	ErrJobNotFound = errors.New("print job not found")
	ErrJobExists   = errors.New("print job already exists for queue entry")

	ErrStatusNotFound     = errors.New("print status not found")
	ErrStatusExists       = errors.New("print status already exists for order item")
	ErrTerminalStatus     = errors.New("print status is terminal")
	ErrInvalidMessageType = errors.New("invalid message type")

	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrConcurrentUpdate  = errors.New("record was modified concurrently")
)
