package supervisor

import (
	"context"

	"github.com/thejerf/suture/v4"
)

// service adapts a function to suture.Service with a name for the event log.
type service struct {
	name  string
	serve func(ctx context.Context) error
}

func (s *service) Serve(ctx context.Context) error { return s.serve(ctx) }

func (s *service) String() string { return s.name }

// Func wraps serve as a named service. serve must return when ctx is done.
func Func(name string, serve func(ctx context.Context) error) suture.Service {
	return &service{name: name, serve: serve}
}

// StartStop adapts a component with Start/Stop lifecycle methods: start runs
// once, the service then blocks until cancellation and calls stop.
func StartStop(name string, start func() error, stop func()) suture.Service {
	return Func(name, func(ctx context.Context) error {
		if err := start(); err != nil {
			return err
		}
		<-ctx.Done()
		stop()
		return ctx.Err()
	})
}
