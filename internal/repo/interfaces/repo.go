package interfaces

import (
	"context"

	"github.com/eaidavid/sistema-sub001/internal/models"
)

type HouseRepo interface {
	// FindByIdentifier returns (nil, nil) when no house matches.
	FindByIdentifier(ctx context.Context, identifier string) (*models.House, error)
	ListHouses(ctx context.Context) ([]models.House, error)
}

type AffiliateRepo interface {
	// FindByUsername returns (nil, nil) when no affiliate matches.
	FindByUsername(ctx context.Context, username string) (*models.Affiliate, error)
}

type CommissionRepo interface {
	// RecordCommission writes the ledger entry and the hourly affiliate
	// rollup in one transaction. Returns false when the idempotency key
	// already exists and nothing was written.
	RecordCommission(ctx context.Context, rec *models.CommissionRecord) (bool, error)
	GetAffiliateStats(ctx context.Context, username string) ([]models.AffiliateStats, error)
}
