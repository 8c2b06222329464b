package store

import (
	"context"
	"fmt"
	"path/filepath"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	DataDir     string
	MongoURI    string
	Database    string
	PostgresDSN string
}

// New creates a Store based on the backend name.
//
// Supported backends:
//
//	"memory"   - In-memory (ephemeral, the default)
//	"json"     - Extended JSON files in DataDir
//	"sqlite"   - SQLite database at DataDir/booksdb.db
//	"postgres" - Postgres at PostgresDSN
//	"mongo"    - MongoDB at MongoURI, database Database
func New(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "memory", "":
		return NewMemoryStore(), nil
	case "json":
		return NewJsonFileStore(opts.DataDir)
	case "sqlite":
		return NewSqliteStore(filepath.Join(opts.DataDir, "booksdb.db"))
	case "postgres":
		return NewPostgresStore(ctx, opts.PostgresDSN)
	case "mongo":
		return NewMongoStore(ctx, opts.MongoURI, opts.Database)
	default:
		return nil, fmt.Errorf("%w: %q (supported: memory, json, sqlite, postgres, mongo)", ErrUnknownBackend, opts.Backend)
	}
}
