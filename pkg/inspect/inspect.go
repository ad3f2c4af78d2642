// Package inspect runs the PHP and Zend checks against one file at a time.
package inspect

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/carved4/phpext-inspect/pkg/errors"
	"github.com/carved4/phpext-inspect/pkg/loader"
	"github.com/carved4/phpext-inspect/pkg/resolve"
	"github.com/carved4/phpext-inspect/pkg/zend"
)

// Result is what the reporter receives for one input path.
type Result struct {
	Path         string
	Architecture string
	Record       zend.Record
	// Err is nil for a recognized extension. Otherwise it carries one of the
	// per-file codes from pkg/errors.
	Err error
}

type Inspector struct {
	loader loader.Loader
	logger zerolog.Logger
}

func New(l loader.Loader, logger zerolog.Logger) *Inspector {
	return &Inspector{loader: l, logger: logger}
}

// InspectFile loads path, runs both checks and unloads it again.
func (in *Inspector) InspectFile(path string) Result {
	res := Result{Path: path}
	logger := in.logger.With().Str("path", path).Logger()

	if _, err := os.Stat(path); err != nil {
		logger.Debug().Err(err).Msg("stat failed")
		res.Err = errors.Wrap(errors.ErrOpen, err)
		return res
	}

	lib, err := in.loader.Open(path)
	if err != nil {
		logger.Debug().Err(err).Msg("load failed")
		if !errors.IsCode(err, errors.ErrOpen) {
			err = errors.Wrap(errors.ErrOpen, err)
		}
		res.Err = err
		return res
	}
	defer errors.DeferClose(logger, lib, "unloading module failed")

	res.Architecture = lib.Architecture()
	in.checkModule(logger, lib, &res.Record)
	if res.Record.Err == nil {
		in.checkExtension(logger, lib, &res.Record)
	}

	switch {
	case res.Record.Err != nil:
		res.Err = res.Record.Err
	case res.Record.Kind == 0:
		res.Err = errors.New(errors.ErrUnrecognizedDLL)
	}
	return res
}

// Run inspects paths in order and hands every result to emit. It stops only
// when emit fails.
func (in *Inspector) Run(paths []string, emit func(Result) error) error {
	for _, path := range paths {
		if err := emit(in.InspectFile(path)); err != nil {
			return err
		}
	}
	return nil
}

func (in *Inspector) checkModule(logger zerolog.Logger, lib loader.Library, rec *zend.Record) {
	getter, ok := resolve.Symbol(lib.Symbols(), resolve.GetModule)
	if !ok {
		logger.Debug().Msg("no get_module export")
		return
	}

	base, err := lib.ModuleEntry(getter)
	if err != nil {
		logger.Debug().Err(err).Msg("get_module did not yield an entry")
		rec.Err = errors.Wrap(errors.ErrUnreadable, err)
		return
	}

	layout, err := zend.ReadModuleEntry(lib.Memory(), base, rec)
	if err != nil {
		logger.Debug().Err(err).Uint32("zend_api", rec.APINo).Msg("module entry rejected")
		return
	}
	logger.Debug().
		Uint32("zend_api", rec.APINo).
		Str("layout", layout.Name).
		Str("name", rec.Name).
		Msg("php module entry")
}

// checkExtension requires both zend_extension_entry and the
// extension_version_info marker before trusting the entry's layout.
func (in *Inspector) checkExtension(logger zerolog.Logger, lib loader.Library, rec *zend.Record) {
	entry, ok := resolve.Symbol(lib.Symbols(), resolve.ZendExtensionEntry)
	if !ok {
		return
	}
	if _, ok := resolve.Symbol(lib.Symbols(), resolve.ExtensionVersionInfo); !ok {
		logger.Debug().Msg("zend_extension_entry without extension_version_info, ignoring")
		return
	}
	ext, err := zend.MergeExtensionEntry(lib.Memory(), entry, rec)
	if err != nil {
		logger.Debug().Err(err).Msg("zend extension entry rejected")
		return
	}
	if ext.Skipped != nil {
		logger.Debug().Err(ext.Skipped).Msg("optional zend extension fields unreadable")
	}
	logger.Debug().Str("name", rec.Name).Msg("zend extension entry")
}
