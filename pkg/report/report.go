// Package report renders inspection results, one tab-separated line per file
// or one YAML document per file.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/carved4/phpext-inspect/pkg/errors"
	"github.com/carved4/phpext-inspect/pkg/inspect"
	"github.com/carved4/phpext-inspect/pkg/zend"
)

type Format string

const (
	FormatTSV  Format = "tsv"
	FormatYAML Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTSV, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want tsv or yaml)", s)
}

type Options struct {
	Format Format
	// PHPLabel prints php:<label> instead of api:<n>.
	PHPLabel bool
}

// Writer emits results in input order. Close flushes the YAML stream.
type Writer struct {
	out  io.Writer
	opts Options
	enc  *yaml.Encoder
}

func NewWriter(out io.Writer, opts Options) *Writer {
	w := &Writer{out: out, opts: opts}
	if opts.Format == FormatYAML {
		w.enc = yaml.NewEncoder(out)
		w.enc.SetIndent(2)
	}
	return w
}

func (w *Writer) Write(res inspect.Result) error {
	if w.enc != nil {
		if err := w.enc.Encode(newDocument(res, w.opts.PHPLabel)); err != nil {
			return fmt.Errorf("encode %s: %w", res.Path, err)
		}
		return nil
	}
	_, err := io.WriteString(w.out, Line(res, w.opts.PHPLabel)+"\n")
	return err
}

func (w *Writer) Close() error {
	if w.enc == nil {
		return nil
	}
	return w.enc.Close()
}

// Line renders res as a single report line without the trailing newline.
// Failed files render as their fixed message.
func Line(res inspect.Result, phpLabel bool) string {
	if res.Err != nil {
		return errors.Message(errors.Code(res.Err))
	}
	rec := res.Record
	fields := []string{
		abiField(rec.APINo, phpLabel),
		"architecture:" + flatten(res.Architecture),
		"threadSafe:" + threadSafe(rec.ThreadSafe),
		"type:" + rec.Kind.String(),
		"name:" + flatten(rec.Name),
		"version:" + flatten(rec.Version),
		"filename:" + flatten(res.Path),
	}
	return strings.Join(fields, "\t")
}

// separators are replaced so a string from the extension cannot start a
// new field or a new line.
var separators = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ", "\t", " ")

func flatten(s string) string {
	return separators.Replace(s)
}

func abiField(apiNo uint32, phpLabel bool) string {
	if phpLabel {
		if apiNo == 0 {
			return "php:"
		}
		return "php:" + zend.PHPLabel(apiNo)
	}
	if apiNo == 0 {
		return "api:"
	}
	return "api:" + strconv.FormatUint(uint64(apiNo), 10)
}

func threadSafe(ts *bool) string {
	switch {
	case ts == nil:
		return ""
	case *ts:
		return "1"
	default:
		return "0"
	}
}
