// Package firestore wraps the Firestore client with typed collections so
// callers never touch raw document maps. Field names come from the struct
// firestore tags; gRPC status codes are mapped to the package sentinels at
// this boundary and nowhere else.
package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/runsight/server/pkg/analysis"
)

type Collection[T any] struct {
	Ref *firestore.CollectionRef
}

func (c *Collection[T]) Doc(id string) *DocumentRef[T] {
	return &DocumentRef[T]{Ref: c.Ref.Doc(id)}
}

func (c *Collection[T]) NewDoc() *DocumentRef[T] {
	return &DocumentRef[T]{Ref: c.Ref.NewDoc()}
}

type DocumentRef[T any] struct {
	Ref *firestore.DocumentRef
}

func (d *DocumentRef[T]) ID() string {
	return d.Ref.ID
}

// Get loads and decodes the document, returning analysis.ErrNotFound when it
// does not exist.
func (d *DocumentRef[T]) Get(ctx context.Context) (*T, error) {
	snap, err := d.Ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, analysis.ErrNotFound
		}
		return nil, err
	}
	var v T
	if err := snap.DataTo(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Set writes the full document, creating or replacing it.
func (d *DocumentRef[T]) Set(ctx context.Context, data *T) error {
	_, err := d.Ref.Set(ctx, data)
	return err
}

// Create writes the document only if absent. An existing document is left
// untouched and reported as analysis.ErrAlreadyExists.
func (d *DocumentRef[T]) Create(ctx context.Context, data *T) error {
	_, err := d.Ref.Create(ctx, data)
	if err != nil && status.Code(err) == codes.AlreadyExists {
		return analysis.ErrAlreadyExists
	}
	return err
}

// Update merges the given fields into the document. Keys must match the
// Firestore snake_case field names; partial updates never pass through the
// struct codec.
func (d *DocumentRef[T]) Update(ctx context.Context, updates map[string]interface{}) error {
	_, err := d.Ref.Set(ctx, updates, firestore.MergeAll)
	return err
}
