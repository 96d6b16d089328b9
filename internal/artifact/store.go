// Package artifact implements the Script Artifact Store (component B): a
// content-addressed blob store for indexer script bodies, keyed by indexer
// id rather than content hash, plus the local staging step the Launcher
// needs before it can exec a sink process against a file path.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by Store.Get when key has no stored script.
var ErrNotFound = errors.New("artifact: not found")

// Store persists and retrieves indexer script bodies.
type Store interface {
	// Put uploads body under key, overwriting any existing object.
	Put(ctx context.Context, key string, body []byte) error
	// Get downloads the object stored under key. Returns ErrNotFound if
	// no such object exists.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the object stored under key. Deleting a key that
	// does not exist is not an error.
	Delete(ctx context.Context, key string) error
}

// ScriptKey returns the object key under which an indexer's script body is
// stored: "scripts/{id}.js".
func ScriptKey(indexerID string) string {
	return "scripts/" + indexerID + ".js"
}

// Stage fetches the script stored under key and writes it to {dir}/{id}.js,
// the local path the Launcher passes to the sink binary. Stage writes to a
// temp file in the same directory first and renames it into place so a
// concurrent reader never observes a partially written script.
func Stage(ctx context.Context, store Store, key, indexerID, dir string) (string, error) {
	body, err := store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("stage script %s: %w", key, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("stage script %s: %w", key, err)
	}

	finalPath := filepath.Join(dir, indexerID+".js")
	tmp, err := os.CreateTemp(dir, indexerID+".js.tmp-*")
	if err != nil {
		return "", fmt.Errorf("stage script %s: %w", key, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("stage script %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("stage script %s: %w", key, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("stage script %s: %w", key, err)
	}

	return finalPath, nil
}
