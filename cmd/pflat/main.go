// Command pflat flattens a directory tree into one directory and restores it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	internal "github.com/ZanzyTHEbar/path-flattener/pflat"
	"github.com/ZanzyTHEbar/path-flattener/pflat/config"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/common"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/types"
	"github.com/ZanzyTHEbar/path-flattener/pflat/ports"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

const usage = `usage: pflat <command> [flags] <args>

commands:
  scan    <src>          list a tree and recommend zip targets
  flatten <src> <dst>    copy every file of src into dst under a flat name
  restore <flat> <dst>   rebuild the tree from a flat directory
  preview <flat>         show where restore would put every flat file

run "pflat <command> --help" for the flags of a command.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app is the state shared by every command
type app struct {
	ctx     context.Context
	cfg     *config.Config
	fs      *filesystem.FileSystem
	console *ports.Console
	logger  zerolog.Logger
	verbose bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(stderr, usage)
		if len(args) == 0 {
			return exitUsage
		}
		return exitOK
	}

	cmd, rest := args[0], args[1:]
	var (
		nargs int
		exec  func(*app, *pflag.FlagSet, []string) error
	)
	switch cmd {
	case "scan":
		nargs, exec = 1, runScan
	case "flatten":
		nargs, exec = 2, runFlatten
	case "restore":
		nargs, exec = 2, runRestore
	case "preview":
		nargs, exec = 1, runPreview
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return exitUsage
	}

	flags := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	flags.SetOutput(stderr)
	v := config.NewViper()
	defineCommon(flags, v)
	defineFor(cmd, flags, v)

	if err := flags.Parse(rest); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if flags.NArg() != nargs {
		fmt.Fprintf(stderr, "%s expects %d argument(s), got %d\n", cmd, nargs, flags.NArg())
		flags.PrintDefaults()
		return exitUsage
	}

	envFile, _ := flags.GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFail
	}
	cfgPath, _ := flags.GetString("config")
	cfg, err := config.Load(v, cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFail
	}

	logger := internal.NewLogger(stderr, cfg.Log.Level, cfg.Log.Format)
	a := &app{
		ctx:     ctx,
		cfg:     cfg,
		fs:      filesystem.New(logger),
		console: ports.NewConsole(stdout, stderr),
		logger:  logger,
	}
	a.verbose, _ = flags.GetBool("verbose")
	quiet, _ := flags.GetBool("quiet")
	a.console.SetQuiet(quiet)

	if err := exec(a, flags, flags.Args()); err != nil {
		var verr *common.ValidationError
		switch {
		case errors.As(err, &verr):
			a.console.Error("invalid parameters", err)
		case errors.Is(err, context.Canceled):
			a.console.Warning("interrupted")
		default:
			a.console.Error(cmd+" failed", err)
		}
		return exitFail
	}
	return exitOK
}

func bind(v *viper.Viper, flags *pflag.FlagSet, key, name string) {
	if f := flags.Lookup(name); f != nil {
		_ = v.BindPFlag(key, f)
	}
}

// defineCommon registers the flags shared by every command. Codec token
// flags are applied by codecOverrides so that a blank default never
// replaces a configured token.
func defineCommon(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("config", "", "config file (default ./config.yaml or "+internal.DefaultGlobalConfig+")")
	flags.String("env-file", "", "dotenv file to load (default ./.env)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "console", "log format: console or json")
	flags.BoolP("verbose", "v", false, "print every item")
	flags.BoolP("quiet", "q", false, "hide progress lines")
	flags.String("manifest", internal.DefaultManifestName, "file map name (.csv or .json)")
	flags.String("path-sep", "", "separator token in flat names")
	flags.String("path-sep-esc", "", "escape for a literal separator token")
	flags.String("esc-seq", "", "escape for a literal separator escape")

	bind(v, flags, "log.level", "log-level")
	bind(v, flags, "log.format", "log-format")
	bind(v, flags, "manifest.name", "manifest")
}

func defineFor(cmd string, flags *pflag.FlagSet, v *viper.Viper) {
	switch cmd {
	case "scan":
		flags.StringSlice("zip-ext", internal.DefaultZipExtensions, "extensions that make a directory a zip target")
		flags.String("zip-ext-file", "", "file with one zip extension per line")
		flags.StringSlice("exclude-pattern", internal.DefaultExcludePatterns, "file name substrings to skip")
		bind(v, flags, "scan.zipExtensions", "zip-ext")
		bind(v, flags, "scan.excludePatterns", "exclude-pattern")
	case "flatten":
		flags.StringSlice("zip", nil, "relative directories archived as one zip each")
		flags.String("zip-file", "", "file with one zip target per line")
		flags.Bool("auto-zip", false, "also zip every directory recommended by the scan")
		flags.StringSlice("zip-ext", internal.DefaultZipExtensions, "extensions used by --auto-zip")
		flags.StringSlice("exclude", nil, "relative paths skipped with everything below them")
		flags.String("exclude-file", "", "file with one exclude target per line")
		flags.StringSlice("exclude-ext", internal.DefaultExcludeExtensions, "file extensions to skip")
		flags.StringSlice("exclude-pattern", internal.DefaultExcludePatterns, "file name substrings to skip")
		flags.String("naming", "encoded", "flat names: encoded or basename")
		flags.Bool("json", false, "also write a JSON file map")
		flags.Bool("move", false, "remove each source file after it is copied")
		bind(v, flags, "scan.zipExtensions", "zip-ext")
		bind(v, flags, "scan.excludePatterns", "exclude-pattern")
		bind(v, flags, "flatten.excludeExtensions", "exclude-ext")
		bind(v, flags, "flatten.naming", "naming")
		bind(v, flags, "flatten.writeJSON", "json")
	case "restore":
		flags.String("method", "manifest", "restore method: manifest, guess or decode")
		flags.Bool("unzip", true, "extract archives instead of copying them")
		bind(v, flags, "restore.method", "method")
		bind(v, flags, "restore.unzip", "unzip")
	}
}

// codecOverrides applies explicitly set token flags on top of the config.
func codecOverrides(a *app, flags *pflag.FlagSet) {
	set := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	set("path-sep", &a.cfg.Codec.PathSep)
	set("path-sep-esc", &a.cfg.Codec.PathSepEsc)
	set("esc-seq", &a.cfg.Codec.EscSeq)
}

// listFlag merges a slice flag with the lines of an optional list file.
func listFlag(flags *pflag.FlagSet, slice, file string) ([]string, error) {
	out, _ := flags.GetStringSlice(slice)
	path, _ := flags.GetString(file)
	if path == "" {
		return out, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return append(out, config.ParseLines(string(data))...), nil
}

func runScan(a *app, flags *pflag.FlagSet, args []string) error {
	opts := a.cfg.ScanOptions()
	if path, _ := flags.GetString("zip-ext-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		opts.ZipExtensions = config.ParseLines(string(data))
	}

	report, err := a.fs.Scan(a.ctx, args[0], opts)
	if err != nil {
		return err
	}

	s := report.Summary
	a.console.Output(fmt.Sprintf("%s: %s files, %s, %s directories",
		report.Root, humanize.Comma(s.TotalCount), humanize.IBytes(uint64(s.TotalSize)), humanize.Comma(int64(s.DirCount))))
	if len(report.Recommended) == 0 {
		a.console.Output("no zip targets recommended")
		return nil
	}
	a.console.Output("recommended zip targets:")
	for _, d := range report.Recommended {
		a.console.Output(fmt.Sprintf("  %s\t%s files\t%s", d, humanize.Comma(int64(s.FileCounts[d])), humanize.IBytes(uint64(s.DirSizes[d]))))
	}
	return nil
}

func runFlatten(a *app, flags *pflag.FlagSet, args []string) error {
	codecOverrides(a, flags)
	opts := a.cfg.FlattenOptions(args[0], args[1])

	var err error
	if opts.ZipTargets, err = listFlag(flags, "zip", "zip-file"); err != nil {
		return err
	}
	if opts.ExcludeTargets, err = listFlag(flags, "exclude", "exclude-file"); err != nil {
		return err
	}
	opts.RemoveSource, _ = flags.GetBool("move")

	if auto, _ := flags.GetBool("auto-zip"); auto {
		report, err := a.fs.Scan(a.ctx, args[0], a.cfg.ScanOptions())
		if err != nil {
			return err
		}
		opts.ZipTargets = append(opts.ZipTargets, report.Recommended...)
	}

	events, err := a.fs.Runner().StartFlatten(a.ctx, opts)
	if err != nil {
		return err
	}
	return a.drain(events)
}

func runRestore(a *app, flags *pflag.FlagSet, args []string) error {
	codecOverrides(a, flags)
	opts := a.cfg.RestoreOptions(args[0], args[1])

	events, err := a.fs.Runner().StartRestore(a.ctx, opts)
	if err != nil {
		return err
	}
	return a.drain(events)
}

func runPreview(a *app, flags *pflag.FlagSet, args []string) error {
	codecOverrides(a, flags)
	opts := a.cfg.RestoreOptions(args[0], args[0])

	items, err := a.fs.PreviewRestore(a.ctx, opts)
	if err != nil {
		return err
	}
	for _, it := range items {
		manifest := it.ManifestPath
		if manifest == "" {
			manifest = "-"
		}
		line := fmt.Sprintf("%s\tmanifest=%s\tdecode=%s\tguess=%s", it.FlatName, manifest, it.DecodedPath, it.GuessPath)
		if it.Archive {
			line += "\tzip"
		}
		a.console.Output(line)
	}
	a.console.Output(fmt.Sprintf("%d files", len(items)))
	return nil
}

// drain prints the events of one run and returns the run error.
func (a *app) drain(events <-chan types.Event) error {
	var runErr error
	lastStep := -1
	for ev := range events {
		switch ev.Type {
		case types.EventLog:
			switch ev.Level {
			case types.LevelError:
				a.console.Error(ev.Message, ev.Err)
			case types.LevelWarn:
				a.console.Warning(ev.Message)
			default:
				if a.verbose {
					a.console.Output(ev.Message)
				}
			}
		case types.EventProgress:
			if step := progressStep(*ev.Progress); a.verbose || step != lastStep {
				lastStep = step
				a.console.Progress(*ev.Progress)
			}
		case types.EventDone:
			runErr = ev.Err
			a.printResult(ev)
		}
	}
	return runErr
}

func (a *app) printResult(ev types.Event) {
	switch {
	case ev.Flatten != nil:
		r := ev.Flatten
		parts := []string{
			fmt.Sprintf("%d files", r.Processed),
			fmt.Sprintf("%d archives", r.Zipped),
			fmt.Sprintf("%d skipped", r.Skipped),
			fmt.Sprintf("%d errors", r.Errors),
		}
		if r.Renamed > 0 {
			parts = append(parts, fmt.Sprintf("%d renamed", r.Renamed))
		}
		if r.Irreversible > 0 {
			parts = append(parts, fmt.Sprintf("%d need the file map", r.Irreversible))
		}
		a.console.Output(fmt.Sprintf("flatten %s: %s in %s", status(r.Canceled), strings.Join(parts, ", "), r.Duration.Round(1e6)))
		if r.ManifestPath != "" {
			a.console.Output("file map: " + r.ManifestPath)
		}
	case ev.Restore != nil:
		r := ev.Restore
		a.console.Output(fmt.Sprintf("restore %s: %d restored, %d unresolved, %d errors in %s",
			status(r.Canceled), r.Restored, r.Unresolved, r.Errors, r.Duration.Round(1e6)))
	}
}

// progressStep buckets a snapshot into tenths of the file count.
func progressStep(p types.Progress) int {
	if p.TotalCount <= 0 {
		return 10
	}
	return int(p.DoneCount * 10 / p.TotalCount)
}

func status(canceled bool) string {
	if canceled {
		return "canceled"
	}
	return "finished"
}
