package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sink receives audit events.
type Sink interface {
	Append(ctx context.Context, e Event) error
}

// Recorder is what domain services depend on to emit events.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// Publisher stamps events and fans them out to every sink. A failing sink
// does not stop the others; the joined error is returned for the caller to log.
type Publisher struct {
	sinks []Sink
}

// NewPublisher builds a publisher over the given sinks. Nil sinks are skipped.
func NewPublisher(sinks ...Sink) *Publisher {
	p := &Publisher{}
	for _, s := range sinks {
		if s != nil {
			p.sinks = append(p.sinks, s)
		}
	}
	return p
}

// Record fills in the id, timestamp and request client details, then appends
// the event to all sinks.
func (p *Publisher) Record(ctx context.Context, e Event) error {
	if p == nil {
		return nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if info, ok := clientFrom(ctx); ok {
		if e.IPAddress == "" {
			e.IPAddress = info.ip
		}
		if e.UserAgent == "" {
			e.UserAgent = info.userAgent
		}
	}

	var errs []error
	for _, s := range p.sinks {
		if err := s.Append(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type clientKey struct{}

type clientInfo struct {
	ip        string
	userAgent string
}

// WithClient attaches the caller's network details to ctx so recorded events
// carry them.
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey{}, clientInfo{ip: ip, userAgent: userAgent})
}

func clientFrom(ctx context.Context) (clientInfo, bool) {
	info, ok := ctx.Value(clientKey{}).(clientInfo)
	return info, ok
}
