// Package cli wires flags, logging, the loader and the reporter together.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/carved4/phpext-inspect/internal/logging"
	"github.com/carved4/phpext-inspect/pkg/errors"
	"github.com/carved4/phpext-inspect/pkg/inspect"
	"github.com/carved4/phpext-inspect/pkg/loader"
	"github.com/carved4/phpext-inspect/pkg/report"
)

type options struct {
	mode      string
	format    string
	phpLabel  bool
	logLevel  string
	logPretty bool
}

// NewRootCmd builds the command. Reports go to stdout and logs to stderr.
func NewRootCmd(prog string, stdout, stderr io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   prog + " [flags] [--] <path-to-extension-1> ... <path-to-extension-N>",
		Short: "Report PHP and Zend extension metadata of Windows DLLs",
		Long: `Reads the zend_module_entry returned by get_module and the
zend_extension_entry export of each DLL and prints one line per file with
the Zend API number, architecture, thread safety, type, name and version.

Native mode maps the DLL with the Windows loader without running DllMain
and calls get_module. Static mode never runs foreign code and works on any
host.

Paths starting with '-' must follow a '--' terminator.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(prog, stdout, stderr, opts, args)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	addFlags(cmd.Flags(), &opts)
	return cmd
}

func addFlags(flags *pflag.FlagSet, opts *options) {
	flags.StringVar(&opts.mode, "mode", string(loader.ModeAuto), "Loader backend: auto, native or static")
	flags.StringVar(&opts.format, "format", string(report.FormatTSV), "Output format: tsv or yaml")
	flags.BoolVar(&opts.phpLabel, "php-label", false, "Print the PHP version label instead of the API number")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error)")
	flags.BoolVar(&opts.logPretty, "log-pretty", false, "Human-readable log output")
}

func run(prog string, stdout, stderr io.Writer, opts options, paths []string) error {
	if len(paths) == 0 {
		_, _ = fmt.Fprintf(stdout, "Syntax: %s <path-to-extension-1> ... <path-to-extension-N>\n", prog)
		return errors.New(errors.ErrUsage)
	}

	if _, err := loader.HostArchitecture(); err != nil {
		_, _ = fmt.Fprintln(stdout, errors.Message(errors.ErrUnrecognizedArch))
		return err
	}

	mode, err := loader.ParseMode(opts.mode)
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	logCfg := logging.Config{
		Level:  opts.logLevel,
		Pretty: opts.logPretty,
		Output: stderr,
	}
	logger := logging.NewWithComponent(logCfg, "inspect")

	ld, err := loader.New(mode, logging.NewWithComponent(logCfg, "loader"))
	if err != nil {
		return err
	}

	if mode.Resolve() == loader.ModeNative {
		restore := loader.SuppressErrorDialogs()
		defer restore()
	}

	logger.Debug().Str("mode", string(mode.Resolve())).Int("files", len(paths)).Msg("inspecting")

	w := report.NewWriter(stdout, report.Options{Format: format, PHPLabel: opts.phpLabel})
	if err := inspect.New(ld, logger).Run(paths, w.Write); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return w.Close()
}

// Execute runs the command with the process arguments and returns the exit
// code.
func Execute() int {
	prog := filepath.Base(os.Args[0])
	cmd := NewRootCmd(prog, os.Stdout, os.Stderr)
	cmd.SetArgs(os.Args[1:])
	if err := cmd.Execute(); err != nil {
		// usage and architecture failures already printed their line
		if !errors.IsCode(err, errors.ErrUsage) && !errors.IsCode(err, errors.ErrUnrecognizedArch) {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}
