package docindex

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedIndex indicates an index entry is missing a required field.
	// Errors of type *MalformedIndexError match it via errors.Is.
	ErrMalformedIndex = errors.New("malformed index")

	// ErrNotReady indicates the service has no loaded store yet
	ErrNotReady = errors.New("index not ready")

	// ErrFullTextUnavailable indicates no full-text index is open
	ErrFullTextUnavailable = errors.New("full-text index not available")

	// ErrInvalidTarget indicates a link target outside the documentation root
	ErrInvalidTarget = errors.New("invalid target")

	// ErrPageNotFound indicates the page a target points at does not exist
	ErrPageNotFound = errors.New("page not found")

	// ErrBinaryPage indicates the target is not a text page
	ErrBinaryPage = errors.New("binary page")
)

// PageTooLargeError reports a page above the configured size limit.
type PageTooLargeError struct {
	Size int64
	Max  int64
}

func (e *PageTooLargeError) Error() string {
	return fmt.Sprintf("page too large: %d bytes (max %d)", e.Size, e.Max)
}

// MalformedIndexError reports an entry that lacks a key, label or target.
// A store is never built from input that produced this error.
type MalformedIndexError struct {
	Shard string // shard name
	Row   int    // zero-based row position within the shard
	Field string // "key", "label", "target" or "row"
	Msg   string // optional detail
}

func (e *MalformedIndexError) Error() string {
	msg := fmt.Sprintf("malformed index: shard %q row %d: missing %s", e.Shard, e.Row, e.Field)
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	return msg
}

// Is makes errors.Is(err, ErrMalformedIndex) report true.
func (e *MalformedIndexError) Is(target error) bool {
	return target == ErrMalformedIndex
}

// SyntaxError reports a shard that could not be tokenized.
type SyntaxError struct {
	Shard  string
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error in shard %q at offset %d: %s", e.Shard, e.Offset, e.Msg)
}
