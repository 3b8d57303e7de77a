// Package eventbridge wraps platform change-notification subscriptions into
// typed callbacks with explicitly owned registration tokens.
//
// Each registration runs its own dispatcher goroutine fed by an
// overwrite-oldest ring buffer, so the platform's notification context is
// never blocked by a slow consumer callback. Callbacks are therefore invoked
// on a bridge-chosen goroutine and may run concurrently with any other
// operation on the owning device.
package eventbridge

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/bleperiph/internal/groutine"
	"github.com/srg/bleperiph/pkg/platform"
)

// DefaultQueueSize is the default per-registration event buffer capacity.
const DefaultQueueSize = 16

// Source is a platform event stream that hands out registration tokens.
type Source[E any] interface {
	Subscribe(fn func(E)) (platform.Token, error)
	Unsubscribe(tok platform.Token) error
}

// Registration is a live event subscription. It owns the platform token and
// must be Released exactly once when the subscription is no longer needed.
type Registration[E any] struct {
	name     string
	source   Source[E]
	token    platform.Token
	queue    *RingChannel[E]
	done     chan struct{}
	logger   *logrus.Logger
	released atomic.Bool
}

// Subscribe registers handler for events from src. The returned Registration
// owns the platform token; events are delivered to handler in arrival order
// on a dedicated dispatcher goroutine.
func Subscribe[E any](src Source[E], name string, queueSize int, handler func(E), logger *logrus.Logger) (*Registration[E], error) {
	if handler == nil {
		return nil, fmt.Errorf("event bridge %q: handler is required", name)
	}
	if logger == nil {
		logger = logrus.New()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	queue := NewRingChannel[E](queueSize)
	token, err := src.Subscribe(queue.Send)
	if err != nil {
		queue.Close()
		return nil, fmt.Errorf("failed to register %q event handler: %w", name, err)
	}

	r := &Registration[E]{
		name:   name,
		source: src,
		token:  token,
		queue:  queue,
		done:   make(chan struct{}),
		logger: logger,
	}

	groutine.Go(context.Background(), "eventbridge-"+name, func(context.Context) {
		defer close(r.done)
		for e := range queue.C() {
			handler(e)
		}
	})

	logger.WithFields(logrus.Fields{
		"event": name,
		"token": token,
	}).Debug("Registered event subscription")

	return r, nil
}

// Token returns the platform registration token.
func (r *Registration[E]) Token() platform.Token {
	return r.token
}

// Name returns the registration name used for logging and goroutine labels.
func (r *Registration[E]) Name() string {
	return r.name
}

// Release unsubscribes from the platform source and stops the dispatcher
// after draining events already buffered. It is best-effort: an unsubscribe
// failure is logged, never returned, because Release runs during teardown
// when the caller can no longer react. Release is idempotent and safe to call
// concurrently with event delivery.
func (r *Registration[E]) Release() {
	if r == nil || r.released.Swap(true) {
		return
	}

	if err := r.source.Unsubscribe(r.token); err != nil {
		r.logger.WithFields(logrus.Fields{
			"event": r.name,
			"token": r.token,
		}).WithError(err).Warn("Failed to unsubscribe event registration")
	}

	r.queue.Close()
	<-r.done

	r.logger.WithField("event", r.name).Debug("Event registration released")
}
