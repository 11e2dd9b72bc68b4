package service

import (
	"context"
	"log"
	"time"
)

// Publisher delivers domain events to the broker.  queue.Publisher
// implements it.
type Publisher interface {
	Publish(ctx context.Context, queueName string, event any) error
}

// Clock returns the current time.  Services default to time.Now and tests
// substitute a fixed clock.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// publish sends an event after the owning transaction committed.  Broker
// failures are logged and never fail the request.
func publish(ctx context.Context, p Publisher, queueName string, event any) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.Publish(ctx, queueName, event); err != nil {
		log.Printf("events: publish %s failed: %v", queueName, err)
	}
}
