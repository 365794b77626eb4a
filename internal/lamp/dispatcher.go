package lamp

import (
	"context"

	"billiard-pos-backend/internal/logger"
	"billiard-pos-backend/internal/model"
)

// Dispatcher runs a pool of workers that deliver lamp commands in the
// background. State-machine callers hand a command off and move on; the
// outcome is observed here and surfaces only as a log line.
type Dispatcher struct {
	size   int
	jobs   chan Command
	sender Sender
}

// NewDispatcher creates a dispatcher backed by the given sender.
func NewDispatcher(size int, sender Sender) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	return &Dispatcher{
		size:   size,
		jobs:   make(chan Command, size*4),
		sender: sender,
	}
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.size; i++ {
		go d.worker(ctx, i)
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	logger.Debug("lamp worker started", "worker", id)
	for {
		select {
		case cmd := <-d.jobs:
			res := d.sender.Send(ctx, cmd)
			if res.ErrKind != "" {
				logger.Warn("lamp command failed",
					"channel", cmd.Channel, "action", cmd.Action, "error", res.ErrKind)
			} else if !res.OK {
				logger.Warn("lamp device returned non-success status",
					"channel", cmd.Channel, "action", cmd.Action, "status", res.StatusCode)
			} else {
				logger.Debug("lamp command delivered",
					"channel", cmd.Channel, "action", cmd.Action, "auto_off_s", cmd.AutoOffSeconds)
			}
		case <-ctx.Done():
			logger.Debug("lamp worker shutting down", "worker", id)
			return
		}
	}
}

// Dispatch queues a command for delivery.
func (d *Dispatcher) Dispatch(cmd Command) {
	d.jobs <- cmd
}

// CommandFor builds the relay command that brings the given table's lamp to
// the requested action, honoring its override endpoints.
func CommandFor(t *model.Table, action Action, position int, autoOffSeconds int) Command {
	cmd := Command{
		Channel:        ResolveChannel(t.Channel, t.Name, position),
		Action:         action,
		AutoOffSeconds: autoOffSeconds,
	}
	switch action {
	case ActionOn:
		cmd.OverrideURL = t.RemoteOn
	case ActionOff:
		cmd.OverrideURL = t.RemoteOff
	case ActionToggle:
		cmd.OverrideURL = t.RemoteToggle
	}
	return cmd
}
