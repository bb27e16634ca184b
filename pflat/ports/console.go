package ports

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/types"
)

// Console writes plain lines to an output and an error stream.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	err     io.Writer
	spinner string
	quiet   bool
}

// NewConsole creates a console on out and errOut; nil means stdout and stderr.
func NewConsole(out, errOut io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &Console{out: out, err: errOut}
}

// SetQuiet suppresses progress lines.
func (c *Console) SetQuiet(q bool) {
	c.mu.Lock()
	c.quiet = q
	c.mu.Unlock()
}

func (c *Console) Output(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, message)
}

func (c *Console) Warning(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.err, "warning: %s\n", message)
}

func (c *Console) Error(message string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		fmt.Fprintf(c.err, "error: %s: %v\n", message, err)
		return
	}
	fmt.Fprintf(c.err, "error: %s\n", message)
}

// Progress prints remaining and processed counts with human readable sizes.
func (c *Console) Progress(p types.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quiet {
		return
	}
	fmt.Fprintln(c.err, FormatProgress(p))
}

func (c *Console) StartSpinner(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spinner = message
	fmt.Fprintf(c.err, "%s...\n", message)
}

func (c *Console) StopSpinner(success bool, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := "done"
	if !success {
		status = "failed"
	}
	if message == "" {
		message = c.spinner
	}
	c.spinner = ""
	fmt.Fprintf(c.err, "%s: %s\n", status, message)
}

// FormatProgress renders a snapshot as
// "3/10 files, 1.0 KiB/4.0 KiB, 7 remaining (3.0 KiB)".
func FormatProgress(p types.Progress) string {
	return fmt.Sprintf("%s/%s files, %s/%s, %s remaining (%s)",
		humanize.Comma(p.DoneCount), humanize.Comma(p.TotalCount),
		humanize.IBytes(nonNegative(p.DoneSize)), humanize.IBytes(nonNegative(p.TotalSize)),
		humanize.Comma(p.RemainingCount()), humanize.IBytes(nonNegative(p.RemainingSize())))
}

func nonNegative(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

var _ Interactor = (*Console)(nil)
