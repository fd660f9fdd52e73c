package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-referral/app/events"
)

// AsyncRunner runs fire-and-forget work such as event publishing.
type AsyncRunner func(task func())

type Option func(*options)

type options struct {
	now         func() time.Time
	publisher   events.Publisher
	asyncRunner AsyncRunner
}

func defaultOptions() options {
	return options{
		now:       time.Now,
		publisher: events.NoopPublisher{},
		asyncRunner: func(task func()) {
			go task()
		},
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithPublisher(publisher events.Publisher) Option {
	return func(o *options) {
		if publisher != nil {
			o.publisher = publisher
		}
	}
}

func WithAsyncRunner(runner AsyncRunner) Option {
	return func(o *options) {
		if runner != nil {
			o.asyncRunner = runner
		}
	}
}

// publish hands the event to the publisher off the request path. Failures
// are logged and never reach the caller.
func (o *options) publish(eventType string, payload interface{}) {
	event := events.New(eventType, o.now(), payload)
	o.asyncRunner(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := o.publisher.Publish(ctx, event); err != nil {
			logrus.WithError(err).WithField("event", eventType).Warn("failed to publish event")
		}
	})
}
