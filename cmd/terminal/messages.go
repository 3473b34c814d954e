package main

import (
	"github.com/mergemate/mergemate/internal/storage"
)

// Indicates that the database connection has been established.
type storeConnectedMsg struct {
	store   storage.Store
	cleanup func()
	err     error
}

// Carries a freshly loaded page of stored reviews.
type reviewsLoadedMsg struct {
	reviews []storage.ReviewRecord
	err     error
}

// Carries one review rendered as terminal markdown.
type reviewRenderedMsg struct {
	requestKey string
	content    string
	err        error
}

// A generic error message for reporting failures from commands.
type errorMsg struct{ err error }

func (e errorMsg) Error() string {
	return e.err.Error()
}
