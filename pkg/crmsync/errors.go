package crmsync

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyParentFilter is returned when a parent field is declared but the
	// previous object returned no identifiers, which would render `in ()`.
	ErrEmptyParentFilter = errors.New("parent filter has no identifiers")
	// ErrMissingCursor is returned for an unfinished page without a next cursor
	ErrMissingCursor = errors.New("query page not done but has no next records url")
	// ErrMissingField is returned when a fetched record lacks a selected field
	ErrMissingField = errors.New("record is missing a mapped field")
	// ErrEmptyPrimaryKey is returned when a fetched record has no primary value
	ErrEmptyPrimaryKey = errors.New("record has an empty primary key")
	// ErrUnknownField is returned when the mapping names fields the object lacks
	ErrUnknownField = errors.New("unknown field")
	// ErrEmptySourceMirror is returned when the empty source guard is enabled
	// and a fetch returned nothing while the table still has rows
	ErrEmptySourceMirror = errors.New("source returned no records, refusing to delete every destination row")
)

// StageError reports which object and stage of a run failed
type StageError struct {
	Object string
	Stage  Stage
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("sync %s failed at %s: %v", e.Object, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// PartialApplyError is returned when a batch operation failed after some
// chunks were already applied. Applied chunks are not rolled back.
type PartialApplyError struct {
	Op      Operation
	Table   string
	Applied int
	Total   int
	Err     error
}

func (e *PartialApplyError) Error() string {
	return fmt.Sprintf("%s on %s stopped after %d of %d records were applied: %v", e.Op, e.Table, e.Applied, e.Total, e.Err)
}

func (e *PartialApplyError) Unwrap() error {
	return e.Err
}
