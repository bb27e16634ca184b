package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/types"
)

// reporter sends the events of one run to the caller and mirrors log
// events to the service logger.
type reporter struct {
	runID  uuid.UUID
	emit   types.EmitFunc
	logger zerolog.Logger
}

func newReporter(runID uuid.UUID, emit types.EmitFunc, logger zerolog.Logger) *reporter {
	return &reporter{
		runID:  runID,
		emit:   emit,
		logger: logger.With().Str("run_id", runID.String()).Logger(),
	}
}

func (r *reporter) send(ev types.Event) {
	if r.emit == nil {
		return
	}
	ev.RunID = r.runID
	ev.Timestamp = time.Now()
	r.emit(ev)
}

func (r *reporter) log(level types.LogLevel, err error, msg string) {
	var zev *zerolog.Event
	switch level {
	case types.LevelError:
		zev = r.logger.Error()
	case types.LevelWarn:
		zev = r.logger.Warn()
	default:
		zev = r.logger.Info()
	}
	if err != nil {
		zev = zev.Err(err)
	}
	zev.Msg(msg)

	r.send(types.Event{Type: types.EventLog, Level: level, Message: msg, Err: err})
}

func (r *reporter) info(msg string) { r.log(types.LevelInfo, nil, msg) }

func (r *reporter) warn(err error, msg string) { r.log(types.LevelWarn, err, msg) }

func (r *reporter) error(err error, msg string) { r.log(types.LevelError, err, msg) }

func (r *reporter) progress(p types.Progress) {
	r.send(types.Event{Type: types.EventProgress, Progress: &p})
}

func (r *reporter) doneFlatten(res *types.FlattenResult, err error) {
	r.send(types.Event{Type: types.EventDone, Flatten: res, Err: err})
}

func (r *reporter) doneRestore(res *types.RestoreResult, err error) {
	r.send(types.Event{Type: types.EventDone, Restore: res, Err: err})
}
