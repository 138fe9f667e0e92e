package model

import "errors"

var (
	// ErrUnauthenticated means no verified caller identity is present.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidInput means the request body is malformed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidLessonState means a stored lesson cannot be graded, e.g. it has no questions.
	ErrInvalidLessonState = errors.New("invalid lesson state")
	// ErrTransientStore means a store transaction kept conflicting until retries ran out.
	ErrTransientStore = errors.New("transient store error")
)
