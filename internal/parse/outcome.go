// Package parse defines the parser contract shared by all report shapes:
// a typed record stream plus record-level warnings that never abort
// sibling records.
package parse

import (
	"context"
	"path/filepath"

	"github.com/fiscalflow/fiscalflow/internal/domain"
)

// File is a parse request. Parsers open Path themselves; Name carries the
// original filename when the path points at an extracted temp copy.
type File struct {
	Path  string
	Name  string
	Shape domain.Shape
}

// DisplayName returns the original filename for logs and provenance.
func (f File) DisplayName() string {
	if f.Name != "" {
		return f.Name
	}
	return filepath.Base(f.Path)
}

// Outcome is what every parser returns. Records carries whatever rows were
// readable; Warnings carries per-record faults; Errors carries file-level
// faults. Success is false only when the file as a whole was unreadable.
type Outcome struct {
	Records  []Record
	Warnings []string
	Errors   []string
	Success  bool
}

// Warn appends a record-level warning.
func (o *Outcome) Warn(msg string) {
	o.Warnings = append(o.Warnings, msg)
}

// Fail appends a file-level error and clears the success flag.
func (o *Outcome) Fail(msg string) {
	o.Errors = append(o.Errors, msg)
	o.Success = false
}

// Parser turns one file into an outcome. Implementations check ctx between
// records and must not retain the file handle past return.
type Parser interface {
	Parse(ctx context.Context, file File) (Outcome, error)
}
