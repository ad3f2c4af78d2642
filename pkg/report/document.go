package report

import (
	"github.com/carved4/phpext-inspect/pkg/errors"
	"github.com/carved4/phpext-inspect/pkg/inspect"
	"github.com/carved4/phpext-inspect/pkg/zend"
)

type document struct {
	Filename     string   `yaml:"filename"`
	Error        string   `yaml:"error,omitempty"`
	API          uint32   `yaml:"api,omitempty"`
	PHP          string   `yaml:"php,omitempty"`
	Architecture string   `yaml:"architecture,omitempty"`
	ThreadSafe   *bool    `yaml:"threadSafe,omitempty"`
	Type         []string `yaml:"type,omitempty"`
	Name         string   `yaml:"name,omitempty"`
	Version      string   `yaml:"version,omitempty"`
	Author       string   `yaml:"author,omitempty"`
	URL          string   `yaml:"url,omitempty"`
	Copyright    string   `yaml:"copyright,omitempty"`
}

func newDocument(res inspect.Result, phpLabel bool) document {
	doc := document{Filename: res.Path}
	if res.Err != nil {
		doc.Error = errors.Message(errors.Code(res.Err))
		return doc
	}

	rec := res.Record
	if rec.APINo != 0 {
		if phpLabel {
			doc.PHP = zend.PHPLabel(rec.APINo)
		} else {
			doc.API = rec.APINo
		}
	}
	doc.Architecture = res.Architecture
	doc.ThreadSafe = rec.ThreadSafe
	if rec.Kind.Has(zend.KindPHP) {
		doc.Type = append(doc.Type, "Php")
	}
	if rec.Kind.Has(zend.KindZend) {
		doc.Type = append(doc.Type, "Zend")
	}
	doc.Name = rec.Name
	doc.Version = rec.Version
	doc.Author = rec.Author
	doc.URL = rec.URL
	doc.Copyright = rec.Copyright
	return doc
}
