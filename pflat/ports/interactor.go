package ports

import "github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/types"

// Interactor is the user-facing output of the CLI
type Interactor interface {
	Output(message string)
	Warning(message string)
	Error(message string, err error)
	Progress(p types.Progress)
	StartSpinner(message string)
	StopSpinner(success bool, message string)
}
