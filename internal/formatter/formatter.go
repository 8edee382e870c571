package formatter

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/cfncheck/cfncheck/internal/validator"
)

const (
	Text = "text"
	JSON = "json"
)

// File is the lint outcome of one template.
type File struct {
	Name        string
	Diagnostics []validator.Diagnostic
}

type jsonDiagnostic struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Level   string `json:"level"`
	Rule    string `json:"rule"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// Write renders files in the given format.
func Write(w io.Writer, format string, files []File) error {
	switch format {
	case Text, "":
		return writeText(w, files)
	case JSON:
		return writeJSON(w, files)
	}
	return errors.Errorf("unknown output format %q", format)
}

// Line renders one diagnostic as file:line:col: level [rule] path: message.
func Line(file string, d validator.Diagnostic) string {
	return fmt.Sprintf("%s:%d:%d: %s", file, d.Position.Line, d.Position.Column, d)
}

func writeText(w io.Writer, files []File) error {
	for _, f := range files {
		for _, d := range f.Diagnostics {
			if _, err := fmt.Fprintln(w, Line(f.Name, d)); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeJSON(w io.Writer, files []File) error {
	out := make([]jsonDiagnostic, 0)
	for _, f := range files {
		for _, d := range f.Diagnostics {
			out = append(out, jsonDiagnostic{
				File:    f.Name,
				Line:    d.Position.Line,
				Column:  d.Position.Column,
				Level:   d.Level.String(),
				Rule:    d.Rule,
				Path:    d.Path.String(),
				Message: d.Message,
			})
		}
	}
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(out), "encoding diagnostics")
}

// Summary counts errors and warnings across files.
func Summary(files []File) (errs, warnings int) {
	for _, f := range files {
		for _, d := range f.Diagnostics {
			if d.Level == validator.LevelWarning {
				warnings++
			} else {
				errs++
			}
		}
	}
	return errs, warnings
}
