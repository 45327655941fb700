// Package store defines the composite Store interface for all hub persistence.
//
// Each subsystem defines its own store interface and the aggregate Store
// composes them, so one backend serves the whole hub.
package store

import (
	"context"
	"errors"

	"github.com/arelis/hub/agent"
	"github.com/arelis/hub/delivery"
	"github.com/arelis/hub/event"
	"github.com/arelis/hub/webhook"
)

var (
	// ErrClosed is returned when a store is used after Close.
	ErrClosed = errors.New("hub: store is closed")

	// ErrMigrationFailed wraps schema migration failures.
	ErrMigrationFailed = errors.New("hub: migration failed")
)

// Store is the aggregate persistence interface.
type Store interface {
	event.Store
	webhook.Store
	delivery.Store
	agent.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}
