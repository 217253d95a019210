// Package notify fans a rendered report out to the configured channels.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maine/trendradar/internal/logger"
	"github.com/maine/trendradar/internal/news"
)

// Channel is one notification destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, r news.Report, messages []string) error
}

// Observer receives per-channel outcomes, e.g. for metrics.
type Observer interface {
	ObserveDelivery(channel string, ok bool, elapsed time.Duration)
}

// Dispatcher sends to every channel concurrently.
type Dispatcher struct {
	channels []Channel
	log      logger.Logger
	observer Observer
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithObserver reports every channel outcome to o.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// NewDispatcher creates a dispatcher over channels.
func NewDispatcher(channels []Channel, log logger.Logger, opts ...Option) *Dispatcher {
	if log == nil {
		log = logger.NewNop()
	}
	d := &Dispatcher{channels: channels, log: log}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Channels returns the names of the configured channels.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Dispatch sends messages to all channels and returns the outcome per channel
// name. A failing or panicking channel never affects the others. With no
// channels it returns an empty map.
func (d *Dispatcher) Dispatch(ctx context.Context, r news.Report, messages []string) map[string]bool {
	results := make(map[string]bool, len(d.channels))
	if len(d.channels) == 0 {
		return results
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, ch := range d.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()

			start := time.Now()
			err := d.send(ctx, ch, r, messages)
			ok := err == nil
			if ok {
				d.log.Info("Notification sent", logger.String("channel", ch.Name()), logger.String("kind", string(r.Kind)))
			} else {
				d.log.Error("Notification failed", logger.String("channel", ch.Name()), logger.Error(err))
			}
			if d.observer != nil {
				d.observer.ObserveDelivery(ch.Name(), ok, time.Since(start))
			}

			mu.Lock()
			results[ch.Name()] = ok
			mu.Unlock()
		}(ch)
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, r news.Report, messages []string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("channel %s panicked: %v", ch.Name(), p)
		}
	}()
	return ch.Send(ctx, r, messages)
}

// AnySucceeded reports whether at least one channel confirmed delivery.
func AnySucceeded(results map[string]bool) bool {
	for _, ok := range results {
		if ok {
			return true
		}
	}
	return false
}
