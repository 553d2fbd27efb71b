// Package store provides persistence for the token bot registry.
package store

import (
	"context"

	"github.com/curvelaunch/botworker/internal/domain"
)

// Repository defines the interface for reading and updating bot records.
//
// Records are created by the launchpad's activation flow; the worker reads
// the ACTIVE set and writes status transitions only.
type Repository interface {
	// ListActiveBots retrieves all bot records with status ACTIVE.
	ListActiveBots(ctx context.Context) ([]*domain.BotRecord, error)

	// GetBot retrieves one bot record by token mint. Returns nil, nil when
	// no record exists.
	GetBot(ctx context.Context, tokenMint string) (*domain.BotRecord, error)

	// UpsertBot creates or updates a bot record.
	UpsertBot(ctx context.Context, bot *domain.BotRecord) error

	// UpdateBotStatus updates a record's status and last error message.
	UpdateBotStatus(ctx context.Context, tokenMint string, status domain.BotStatus, lastError string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
