package events

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Dispatcher queues events in a bounded buffer and hands them to a
// Publisher from a single background loop. A full buffer drops the event.
type Dispatcher struct {
	queue   chan Event
	pub     Publisher
	log     logrus.FieldLogger
	timeout time.Duration
	done    chan struct{}
}

func NewDispatcher(pub Publisher, buffer int, log logrus.FieldLogger) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		queue:   make(chan Event, buffer),
		pub:     pub,
		log:     log,
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
}

func (d *Dispatcher) Emit(ev Event) {
	select {
	case d.queue <- ev:
	default:
		d.log.WithFields(logrus.Fields{
			"event_id":   ev.ID,
			"event_type": ev.Type,
		}).Warn("event buffer full, dropping event")
	}
}

// Run publishes queued events until ctx is cancelled, then drains what is
// left in the buffer.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case ev := <-d.queue:
			d.publish(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-d.queue:
					d.publish(ev)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (d *Dispatcher) Wait() {
	<-d.done
}

func (d *Dispatcher) publish(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.pub.Publish(ctx, ev); err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{
			"event_id":   ev.ID,
			"event_type": ev.Type,
		}).Error("publish event")
	}
}

// Multi fans an event out to several publishers and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher writes events to the log. It stands in for a broker in
// local runs.
type LogPublisher struct {
	Log logrus.FieldLogger
}

func (p LogPublisher) Publish(_ context.Context, ev Event) error {
	p.Log.WithFields(logrus.Fields{
		"event_id":     ev.ID,
		"event_type":   ev.Type,
		"aggregate_id": ev.AggregateID,
	}).Info("domain event")
	return nil
}
