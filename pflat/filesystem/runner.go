package filesystem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/common"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/options"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/services"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/types"
)

// defaultEventBuffer is the capacity of a run's event channel
const defaultEventBuffer = 64

// Runner executes one flatten or restore run at a time on a background
// goroutine and streams its events to the caller.
//
// The caller must drain the returned channel until it is closed; a full
// channel blocks the run. Once ctx is canceled the run stops at the next
// entry and events that do not fit the channel are dropped, so a caller
// may cancel and stop reading.
type Runner struct {
	flatten *services.FlattenService
	restore *services.RestoreService
	logger  zerolog.Logger

	mu     sync.Mutex
	active bool
	idle   chan struct{}
	buffer int
}

// NewRunner creates a runner for the given services
func NewRunner(flatten *services.FlattenService, restore *services.RestoreService, logger zerolog.Logger) *Runner {
	idle := make(chan struct{})
	close(idle)
	return &Runner{
		flatten: flatten,
		restore: restore,
		logger:  logger.With().Str("component", "runner").Logger(),
		idle:    idle,
		buffer:  defaultEventBuffer,
	}
}

// StartFlatten validates opts and starts a flatten run. Validation errors
// are returned directly and no goroutine is started.
func (r *Runner) StartFlatten(ctx context.Context, opts options.FlattenOptions) (<-chan types.Event, error) {
	if err := r.flatten.ValidateFlatten(opts); err != nil {
		return nil, err
	}
	return r.start(ctx, "flatten", func(emit types.EmitFunc) {
		_, _, _ = r.flatten.Run(ctx, opts, emit)
	})
}

// StartRestore validates opts and starts a restore run.
func (r *Runner) StartRestore(ctx context.Context, opts options.RestoreOptions) (<-chan types.Event, error) {
	if err := r.restore.ValidateRestore(opts); err != nil {
		return nil, err
	}
	return r.start(ctx, "restore", func(emit types.EmitFunc) {
		_, _ = r.restore.Run(ctx, opts, emit)
	})
}

// Busy reports whether a run is in progress.
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Wait blocks until the current run, if any, has finished.
func (r *Runner) Wait() {
	r.mu.Lock()
	idle := r.idle
	r.mu.Unlock()
	<-idle
}

func (r *Runner) start(ctx context.Context, kind string, run func(types.EmitFunc)) (<-chan types.Event, error) {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return nil, common.ErrRunnerBusy
	}
	r.active = true
	idle := make(chan struct{})
	r.idle = idle
	r.mu.Unlock()

	events := make(chan types.Event, r.buffer)
	emit := func(ev types.Event) {
		select {
		case events <- ev:
			return
		case <-ctx.Done():
		}
		if ev.Type != types.EventDone {
			return
		}
		select {
		case events <- ev:
		default:
			r.logger.Warn().Str("run", kind).Msg("done event dropped, event channel full after cancel")
		}
	}

	go func() {
		defer func() {
			r.mu.Lock()
			r.active = false
			r.mu.Unlock()
			close(events)
			close(idle)
		}()

		var wg conc.WaitGroup
		wg.Go(func() { run(emit) })

		if rec := wg.WaitAndRecover(); rec != nil {
			err := fmt.Errorf("%s run panicked: %w", kind, rec.AsError())
			r.logger.Error().Err(err).Str("stack", string(rec.Stack)).Msg("run aborted")
			emit(types.Event{
				Type:      types.EventDone,
				Timestamp: time.Now(),
				Level:     types.LevelError,
				Message:   err.Error(),
				Err:       err,
			})
		}
	}()

	return events, nil
}
