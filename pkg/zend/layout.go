package zend

import (
	"github.com/carved4/phpext-inspect/pkg/errors"
)

// ZEND_MODULE_API_NO values of released PHP branches.
const (
	APINo74   = 20190529
	APINo73   = 20180731
	APINo72   = 20170718
	APINo71   = 20160303
	APINo70   = 20151012
	APINo56   = 20131226
	APINo55   = 20121212
	APINo54   = 20100525
	APINo53   = 20090626
	APINo52   = 20060613
	APINo51   = 20050922
	APINo503  = 20041030
	APINo500  = 20040412
	APINo4303 = 20020429

	// APINoDeps added the deps pointer after ini_entry.
	APINoDeps = 20050617

	MaxKnownAPINo = APINo74
	MinKnownAPINo = APINo4303
)

// Header is the leading portion shared by every zend_module_entry revision.
type Header struct {
	DeclaredSize uint16
	APINo        uint32
}

// Header field offsets. The api number is 4-byte aligned after the size.
const (
	sizeOffset  = 0
	apiOffset   = 4
	debugOffset = 8
	ztsOffset   = 9
)

// Layout describes one historical zend_module_entry shape.
type Layout struct {
	// Name is the API number that introduced the shape.
	Name     string
	MinAPINo uint32

	zts       uint64
	name32    uint64
	version32 uint64
	name64    uint64
	version64 uint64
}

// Layout20020429: size, zend_api, zend_debug, zts, ini_entry, name,
// functions, five lifecycle hooks, version.
var Layout20020429 = &Layout{
	Name:      "20020429",
	MinAPINo:  MinKnownAPINo,
	zts:       ztsOffset,
	name32:    16,
	version32: 44,
	name64:    24,
	version64: 80,
}

// Layout20050617 inserts deps between ini_entry and name.
var Layout20050617 = &Layout{
	Name:      "20050617",
	MinAPINo:  APINoDeps,
	zts:       ztsOffset,
	name32:    20,
	version32: 48,
	name64:    32,
	version64: 88,
}

// bands is ordered newest first. The first band whose MinAPINo is not above
// the revision wins.
var bands = []*Layout{Layout20050617, Layout20020429}

// Classify picks the layout for apiNo. Revisions newer than the newest known
// one are rejected rather than read with the newest shape.
func Classify(apiNo uint32) (*Layout, error) {
	if apiNo > MaxKnownAPINo {
		return nil, errors.New(errors.ErrUnrecognizedAPI)
	}
	for _, l := range bands {
		if apiNo >= l.MinAPINo {
			return l, nil
		}
	}
	return nil, errors.New(errors.ErrUnrecognizedAPI)
}

func (l *Layout) ZTSOffset() uint64 { return l.zts }

func (l *Layout) NameOffset(ptrSize int) uint64 {
	if ptrSize == 8 {
		return l.name64
	}
	return l.name32
}

func (l *Layout) VersionOffset(ptrSize int) uint64 {
	if ptrSize == 8 {
		return l.version64
	}
	return l.version32
}

// ThreadSafe validates the raw zts byte. Anything but 0 or 1 means the
// struct was not built with this layout.
func (l *Layout) ThreadSafe(zts uint8) (bool, error) {
	switch zts {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, errors.New(errors.ErrInvalidZTS)
	}
}

type label struct {
	apiNo uint32
	php   string
}

// labels is ordered newest first.
var labels = []label{
	{APINo74, "7.4"},
	{APINo73, "7.3"},
	{APINo72, "7.2"},
	{APINo71, "7.1"},
	{APINo70, "7.0"},
	{APINo56, "5.6"},
	{APINo55, "5.5"},
	{APINo54, "5.4"},
	{APINo53, "5.3"},
	{APINo52, "5.2"},
	{APINo51, "5.1"},
	{APINo503, "5.0"},
	{APINo500, "5.0"},
	{APINo4303, "4.3"},
}

// PHPLabel returns the PHP branch for a recognized apiNo, or "" when the
// revision is outside the known range.
func PHPLabel(apiNo uint32) string {
	if apiNo > MaxKnownAPINo {
		return ""
	}
	for _, l := range labels {
		if apiNo >= l.apiNo {
			return l.php
		}
	}
	return ""
}
