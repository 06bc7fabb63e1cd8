package actions

import (
	"context"
	"log/slog"
)

// Dispatcher routes an action to its registered handler.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher over reg.
func NewDispatcher(reg *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: reg, logger: logger}
}

// Dispatch runs the handler for in.Action.Type. An unregistered type is logged
// and reported as handled=false with no error; the dispatcher never fails on
// routing. Handler errors are returned as-is.
func (d *Dispatcher) Dispatch(ctx context.Context, in Input) (handled bool, out *Output, err error) {
	a, ok := d.registry.Get(in.Action.Type)
	if !ok {
		d.logger.WarnContext(ctx, "unknown action type, skipping", "type", string(in.Action.Type))
		return false, nil, nil
	}
	out, err = a.Execute(ctx, in)
	return true, out, err
}

// Registry returns the underlying registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }
