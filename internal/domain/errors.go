package domain

import (
	"errors"
	"fmt"
)

// ResolutionKind tags why a repository could not be resolved.
type ResolutionKind string

const (
	KindNotFound            ResolutionKind = "not_found"
	KindUnauthorized        ResolutionKind = "unauthorized"
	KindMalformedURL        ResolutionKind = "malformed_url"
	KindUpstreamUnavailable ResolutionKind = "upstream_unavailable"
)

// ResolutionError is returned by repository resolvers.
type ResolutionError struct {
	Kind    ResolutionKind
	Message string
	// Status is the hosting API status code, 0 when no response was received.
	Status int
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// AssumesPrivate reports whether the failure means the repository may exist
// but is hidden from the caller.
func (e *ResolutionError) AssumesPrivate() bool {
	return e.Kind == KindNotFound || e.Kind == KindUnauthorized
}

// ResolutionKindOf returns the kind of a resolution failure, or "" when err is
// not a *ResolutionError.
func ResolutionKindOf(err error) ResolutionKind {
	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		return resErr.Kind
	}
	return ""
}

// SubmissionError is returned when a deploy POST fails.
type SubmissionError struct {
	Op     string // "deploy", "auto deploy"
	URL    string // last URL attempted
	Status int    // 0 when Network is true
	Body   string
	// Network is true when no HTTP response was received.
	Network bool
	Err     error
	// FirstURL and FirstFailure describe the initial attempt when a fallback ran.
	FirstURL     string
	FirstFailure string
}

func (e *SubmissionError) Error() string {
	var msg string
	if e.Network {
		msg = fmt.Sprintf("network error when posting %s to %s: %v", e.Op, e.URL, e.Err)
	} else {
		msg = fmt.Sprintf("%s request failed: %d %s (url: %s)", e.Op, e.Status, e.Body, e.URL)
	}
	if e.FirstURL != "" {
		msg += fmt.Sprintf(" (also failed when trying %s: %s)", e.FirstURL, e.FirstFailure)
	}
	return msg
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
