package device

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Supervisor runs one goroutine per device runtime until its context is
// cancelled.
type Supervisor struct {
	runtimes []*Runtime
	logger   Logger
}

// NewSupervisor creates a Supervisor for the given runtimes.
func NewSupervisor(runtimes ...*Runtime) *Supervisor {
	return &Supervisor{
		runtimes: runtimes,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// Add registers another runtime. It must be called before Run.
func (s *Supervisor) Add(r *Runtime) {
	s.runtimes = append(s.runtimes, r)
}

// Len returns the number of supervised runtimes.
func (s *Supervisor) Len() int {
	return len(s.runtimes)
}

// Run subscribes every runtime, then runs all loops and waits for them.
// A subscription failure is returned before any loop starts. After that
// Run returns once ctx is cancelled and every loop has exited.
func (s *Supervisor) Run(ctx context.Context) error {
	for _, r := range s.runtimes {
		if err := r.Start(); err != nil {
			return err
		}
	}

	s.logger.Info("device runtimes starting", "count", len(s.runtimes))

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range s.runtimes {
		g.Go(func() error {
			return r.Run(gctx)
		})
	}
	err := g.Wait()

	s.logger.Info("device runtimes stopped", "count", len(s.runtimes))
	return err
}
