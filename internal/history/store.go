package history

import (
	"context"
	"errors"
	"fmt"
)

var ErrRecordNotFound = errors.New("record not found")

// Store persists the record set between runs. Save replaces the whole set
// in the given order.
type Store interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
	Close() error
}

// Open opens the store backend ("xlsx" or "sqlite") at path
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "xlsx":
		return NewSheetStore(path), nil
	case "sqlite":
		return NewSQLiteStore(path)
	}
	return nil, fmt.Errorf("unknown store backend: %s", backend)
}

// MergeInto loads the stored records, merges batch into them and saves the
// result. An empty batch leaves the store untouched.
func MergeInto(ctx context.Context, store Store, batch []Record) (merged []Record, added int, err error) {
	existing, err := store.Load(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load records: %w", err)
	}
	if len(batch) == 0 {
		return existing, 0, nil
	}

	merged, added = Merge(existing, batch)
	if err := store.Save(ctx, merged); err != nil {
		return nil, 0, fmt.Errorf("failed to save records: %w", err)
	}
	return merged, added, nil
}

// SetStatus changes the status of the record identified by key. This is
// how a user marks an application as an Offer.
func SetStatus(ctx context.Context, store Store, key Key, status Status) error {
	records, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load records: %w", err)
	}

	found := false
	for i := range records {
		if records[i].Key() == key {
			records[i].Status = status
			found = true
			break
		}
	}
	if !found {
		return ErrRecordNotFound
	}

	if err := store.Save(ctx, records); err != nil {
		return fmt.Errorf("failed to save records: %w", err)
	}
	return nil
}

// Copy writes every record of src into dst, merging with what dst holds
func Copy(ctx context.Context, dst, src Store) (int, error) {
	records, err := src.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load source records: %w", err)
	}
	_, added, err := MergeInto(ctx, dst, records)
	return added, err
}
