package repository

import "context"

// RawArchive is an optional cold store for raw callback bodies.
type RawArchive interface {
	Store(ctx context.Context, name string, data []byte) error
}
