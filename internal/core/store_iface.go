package core

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	ErrConflict      = errors.New("precondition failed")
	ErrUnavailable   = errors.New("store unavailable")
	ErrInvalid       = errors.New("invalid path or document")
)

// Document is one JSON object stored at a slash separated path.
type Document struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Snapshot is the state of a watched document at one point in time.
type Snapshot struct {
	Exists   bool     `json:"exists"`
	Document Document `json:"document"`
}

type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change is a single record event of a watched collection.
type Change struct {
	Type     ChangeType `json:"type"`
	Document Document   `json:"document"`
}

// DocumentStore abstracts the external document store used as a signaling side channel.
// Watch channels are closed when ctx is done or the underlying feed fails.
type DocumentStore interface {
	Create(ctx context.Context, path string, data json.RawMessage) error
	Get(ctx context.Context, path string) (Document, error)
	// Update merges fields into the document at path. When ifAbsent is not empty and the
	// document already has that field, nothing is written and ErrConflict is returned.
	Update(ctx context.Context, path string, fields map[string]json.RawMessage, ifAbsent string) error
	Add(ctx context.Context, collection string, data json.RawMessage) (string, error)

	WatchDocument(ctx context.Context, path string) (<-chan Snapshot, error)
	WatchCollection(ctx context.Context, collection string) (<-chan Change, error)
}
