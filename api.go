// Package phpext is the library entry point: inspect PHP and Zend extension
// DLLs without going through the command line.
package phpext

import (
	"github.com/rs/zerolog"

	"github.com/carved4/phpext-inspect/pkg/inspect"
	"github.com/carved4/phpext-inspect/pkg/loader"
	"github.com/carved4/phpext-inspect/pkg/report"
	"github.com/carved4/phpext-inspect/pkg/zend"
)

type (
	Result = inspect.Result
	Record = zend.Record
	Mode   = loader.Mode
)

const (
	ModeAuto   = loader.ModeAuto
	ModeNative = loader.ModeNative
	ModeStatic = loader.ModeStatic
)

var ParseMode = loader.ParseMode
var HostArchitecture = loader.HostArchitecture
var PHPLabel = zend.PHPLabel
var Line = report.Line

// Inspect checks every path with the backend for mode. Per-file failures are
// carried in Result.Err; the returned error is only set when the backend
// cannot be created.
func Inspect(mode Mode, paths ...string) ([]Result, error) {
	return InspectWithLogger(zerolog.Nop(), mode, paths...)
}

func InspectWithLogger(logger zerolog.Logger, mode Mode, paths ...string) ([]Result, error) {
	ld, err := loader.New(mode, logger)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(paths))
	err = inspect.New(ld, logger).Run(paths, func(r Result) error {
		results = append(results, r)
		return nil
	})
	return results, err
}

func InspectFile(mode Mode, path string) (Result, error) {
	results, err := Inspect(mode, path)
	if err != nil {
		return Result{Path: path}, err
	}
	return results[0], nil
}
