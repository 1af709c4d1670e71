package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/keyforge-io/keyforge/internal/models"

	log "github.com/sirupsen/logrus"
)

// defaultQueueSize bounds the number of undelivered events held in memory.
const defaultQueueSize = 64

// defaultTimeout bounds a single webhook delivery attempt.
const defaultTimeout = 5 * time.Second

// Dispatcher queues login events and delivers them from a single worker
// goroutine. Enqueueing never blocks; when the queue is full the event is
// dropped with a warning. It satisfies the engine's Notifier interface.
type Dispatcher struct {
	client *http.Client
	queue  chan LoginEvent

	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher with the given delivery timeout;
// zero or negative values fall back to the default.
func NewDispatcher(timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Dispatcher{
		client: &http.Client{Timeout: timeout},
		queue:  make(chan LoginEvent, defaultQueueSize),
	}
}

// Start launches the delivery worker. It returns immediately; the worker
// drains the queue until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-d.queue:
					if errPost := ev.post(ctx, d.client); errPost != nil {
						log.WithError(errPost).Warn("notify: webhook delivery failed")
					}
				}
			}
		}()
	})
}

// Wait blocks until the worker has stopped.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// LoginSucceeded filters the login through the application's webhook
// settings and enqueues the resulting event without blocking.
func (d *Dispatcher) LoginSucceeded(app *models.Application, user *models.EndUser, hwid, ip string) {
	ev, ok := BuildEvent(app, user, hwid, ip)
	if !ok {
		return
	}
	select {
	case d.queue <- ev:
	default:
		log.Warn("notify: queue full, dropping login event")
	}
}
