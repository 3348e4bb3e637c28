package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

type IdempotencyStore interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency drops a key whose request left nothing behind
	ReleaseIdempotency(ctx context.Context, key string) error
}

type MaintenanceStore interface {
	GetMaintenance(ctx context.Context) (domain.MaintenanceStatus, error)
	SaveMaintenance(ctx context.Context, status domain.MaintenanceStatus) error
}
