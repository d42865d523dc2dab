package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orrn/printfarm/internal/logging"
)

// Delivery is one outbound send produced by a Sink, e.g. one webhook POST.
type Delivery struct {
	Target string
	Send   func(ctx context.Context) error
}

// Sink expands a notification into the deliveries of one channel.
type Sink interface {
	Name() string
	Deliveries(ctx context.Context, n *Notification) ([]Delivery, error)
}

type Config struct {
	WorkerCount int
	QueueSize   int
	RetryCount  int
	RetryDelay  time.Duration
	Timeout     time.Duration
}

// HTTPError carries a non-2xx response status. 4xx responses are not retried.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: %d", e.StatusCode)
}

func isClientError(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 400 && httpErr.StatusCode < 500
	}
	return false
}

// Dispatcher is the outbound notification queue. Producers hand notifications
// over without blocking; workers expand them through every sink and deliver
// with retries.
type Dispatcher struct {
	sinks      []Sink
	workers    int
	retryCount int
	retryDelay time.Duration
	timeout    time.Duration
	queue      chan *Notification
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	log        *logrus.Entry
}

func NewDispatcher(config Config, sinks ...Sink) *Dispatcher {
	if config.RetryCount <= 0 {
		config.RetryCount = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 3
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}

	return &Dispatcher{
		sinks:      sinks,
		workers:    config.WorkerCount,
		retryCount: config.RetryCount,
		retryDelay: config.RetryDelay,
		timeout:    config.Timeout,
		queue:      make(chan *Notification, config.QueueSize),
		stopCh:     make(chan struct{}),
		log:        logging.Component("notify"),
	}
}

// AddSink registers another channel. It must be called before Start.
func (d *Dispatcher) AddSink(s Sink) {
	d.sinks = append(d.sinks, s)
}

func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()
}

// Notify queues n for its customer.
func (d *Dispatcher) Notify(n *Notification) {
	n.normalize(AudienceCustomer)
	d.enqueue(n)
}

// NotifyAdmins queues the operator mirror of n.
func (d *Dispatcher) NotifyAdmins(n *Notification) {
	d.enqueue(n.adminCopy())
}

func (d *Dispatcher) enqueue(n *Notification) {
	select {
	case d.queue <- n:
	default:
		d.log.WithFields(logrus.Fields{
			"event":    n.Event,
			"audience": n.Audience,
			"user_id":  n.UserID,
		}).Warn("queue full, dropping notification")
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopCh:
			return
		case n := <-d.queue:
			d.deliver(id, n)
		}
	}
}

func (d *Dispatcher) deliver(workerID int, n *Notification) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		deliveries, err := sink.Deliveries(ctx, n)
		cancel()
		if err != nil {
			d.log.WithError(err).WithFields(logrus.Fields{
				"sink":  sink.Name(),
				"event": n.Event,
			}).Error("failed to expand notification")
			continue
		}

		for _, delivery := range deliveries {
			attempts, err := d.sendWithRetry(delivery)
			if err != nil {
				d.log.WithError(err).WithFields(logrus.Fields{
					"worker":   workerID,
					"sink":     sink.Name(),
					"target":   delivery.Target,
					"event":    n.Event,
					"attempts": attempts,
				}).Error("failed to deliver notification")
			}
		}
	}
}

func (d *Dispatcher) sendWithRetry(delivery Delivery) (int, error) {
	var lastErr error
	attempt := 0
	for attempt < d.retryCount {
		attempt++

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := delivery.Send(ctx)
		cancel()
		if err == nil {
			return attempt, nil
		}

		lastErr = err

		if isClientError(err) {
			return attempt, err
		}

		if attempt < d.retryCount {
			backoff := d.retryDelay * time.Duration(1<<(attempt-1))
			d.log.WithFields(logrus.Fields{
				"target":  delivery.Target,
				"attempt": attempt,
				"backoff": backoff,
			}).WithError(err).Warn("retrying delivery")

			select {
			case <-d.stopCh:
				return attempt, fmt.Errorf("shutdown requested")
			case <-time.After(backoff):
			}
		}
	}

	return attempt, fmt.Errorf("max retries exceeded: %w", lastErr)
}
