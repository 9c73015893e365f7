package proc

import (
	"errors"
	"fmt"
)

var (
	// ErrNotPlaying is returned by Skip when nothing is audible.
	ErrNotPlaying = errors.New("nothing is playing")
	// ErrCancelled marks a load abandoned because exit or a newer request superseded it.
	ErrCancelled = errors.New("request cancelled")
)

// FetchError is a metadata or stream resolution failure in the media source.
type FetchError struct {
	Ref string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Ref, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DownloadError is a local write failure while staging a cache entry.
type DownloadError struct {
	Path string
	Err  error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download to %s: %v", e.Path, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// TransportError is a connection or player fault.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BoundsError reports a queue position outside 1..Len.
type BoundsError struct {
	Position int
	Len      int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("position %d is out of range (queue has %d items)", e.Position, e.Len)
}

// EligibilityError wraps a rejecting verdict.
type EligibilityError struct {
	Verdict Verdict
}

func (e *EligibilityError) Error() string {
	return "request rejected: " + e.Verdict.String()
}

func (e *EligibilityError) Unwrap() error {
	if e.Verdict.FetchErr != nil {
		return e.Verdict.FetchErr
	}
	return nil
}

func wrapFetch(ref string, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{Ref: ref, Err: err}
}
