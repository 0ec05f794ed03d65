package engine

import (
	"fmt"
	"io"

	"github.com/zmanda/manifest-restore/internal/manifest"
	"github.com/zmanda/manifest-restore/internal/verify"
)

// Class tags a report line with the kind of manifest entry.
type Class int

const (
	ClassNormal Class = iota
	ClassConfig
	ClassNotInstalled
)

// Char returns the single-character tag used in report lines.
func (c Class) Char() byte {
	switch c {
	case ClassConfig:
		return 'c'
	case ClassNotInstalled:
		return 'g'
	default:
		return ' '
	}
}

func (c Class) String() string {
	switch c {
	case ClassConfig:
		return "config"
	case ClassNotInstalled:
		return "not-installed"
	default:
		return "normal"
	}
}

func classOf(e *manifest.Entry) Class {
	switch {
	case e.IsConfig():
		return ClassConfig
	case !e.IsInstalled():
		return ClassNotInstalled
	default:
		return ClassNormal
	}
}

// Result is the diff code recorded for one inspected file.
type Result struct {
	Path  string
	Code  verify.Code
	Class Class
}

// Line is the display form of an actionable result.
type Line struct {
	Code  string `json:"code"`
	Class string `json:"class"`
	Path  string `json:"path"`
}

// Report collects the results of a run in manifest order.
type Report struct {
	Results []Result
}

// Lines returns the actionable results in display form.
func (r *Report) Lines() []Line {
	lines := make([]Line, 0, len(r.Results))
	for _, res := range r.Results {
		if !res.Code.Actionable() {
			continue
		}
		lines = append(lines, Line{Code: res.Code.String(), Class: res.Class.String(), Path: res.Path})
	}
	return lines
}

// Write prints one "<code> <class> <path>" line per actionable result.
func (r *Report) Write(w io.Writer) error {
	for _, res := range r.Results {
		if !res.Code.Actionable() {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s %c %s\n", res.Code, res.Class.Char(), res.Path); err != nil {
			return err
		}
	}
	return nil
}
