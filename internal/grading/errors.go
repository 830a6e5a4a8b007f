package grading

import "errors"

var (
	// ErrNotFound is returned when a submission or its exam does not exist.
	ErrNotFound = errors.New("not found")
	// ErrIncompleteInput is returned when there is nothing to grade: an empty
	// answer key, no submitted answers, or an answer key worth zero points.
	ErrIncompleteInput = errors.New("missing answer key or student answers")
)
