package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/eaidavid/sistema-sub001/internal/models"
	"github.com/eaidavid/sistema-sub001/internal/repo/interfaces"
	"github.com/eaidavid/sistema-sub001/internal/utils"
)

type DirectoryRepo struct {
	db *sqlx.DB
}

func NewDirectoryRepo(db *sqlx.DB) *DirectoryRepo {
	return &DirectoryRepo{db: db}
}

var _ interfaces.HouseRepo = (*DirectoryRepo)(nil)
var _ interfaces.AffiliateRepo = (*DirectoryRepo)(nil)

func (r *DirectoryRepo) FindByIdentifier(ctx context.Context, identifier string) (*models.House, error) {
	query := `
		SELECT id, identifier, name, commission_type, commission_value, cpa_value, revshare_value, created_at
		FROM houses
		WHERE identifier = $1
		ORDER BY id
		LIMIT 1
	`

	var house models.House
	if err := r.db.GetContext(ctx, &house, query, identifier); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get house by identifier: %w", err)
	}

	return &house, nil
}

func (r *DirectoryRepo) ListHouses(ctx context.Context) ([]models.House, error) {
	query := `
		SELECT id, identifier, name, commission_type, commission_value, cpa_value, revshare_value, created_at
		FROM houses
		ORDER BY name
	`

	var houses []models.House
	if err := r.db.SelectContext(ctx, &houses, query); err != nil {
		return nil, fmt.Errorf("select houses: %w", err)
	}

	return houses, nil
}

func (r *DirectoryRepo) FindByUsername(ctx context.Context, username string) (*models.Affiliate, error) {
	query := `
		SELECT id, username, name, email, created_at
		FROM affiliates
		WHERE username = $1
		ORDER BY id
		LIMIT 1
	`

	var affiliate models.Affiliate
	if err := r.db.GetContext(ctx, &affiliate, query, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get affiliate by username: %w", err)
	}

	return &affiliate, nil
}

type CommissionRepo struct {
	db *sqlx.DB
}

func NewCommissionRepo(db *sqlx.DB) interfaces.CommissionRepo {
	return &CommissionRepo{db: db}
}

func (r *CommissionRepo) RecordCommission(ctx context.Context, rec *models.CommissionRecord) (bool, error) {
	itemsJSON, err := json.Marshal(rec.Items)
	if err != nil {
		return false, fmt.Errorf("marshal line items: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertQuery := `
	INSERT INTO commissions (
		id, house_id, house_identifier, affiliate_id, affiliate_username,
		event_type, amount, total_commission, items, customer_id, idempotency_key, created_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12)
	ON CONFLICT (idempotency_key) DO NOTHING
	`

	res, err := tx.ExecContext(ctx, insertQuery,
		rec.ID,
		rec.HouseID,
		rec.HouseIdentifier,
		rec.AffiliateID,
		rec.Affiliate,
		rec.EventType,
		rec.Amount,
		rec.Total,
		string(itemsJSON),
		rec.CustomerID,
		rec.IdempotencyKey,
		rec.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert commission: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if inserted == 0 {
		// Retried delivery already credited; leave the ledger untouched.
		return false, nil
	}

	hourBucket := utils.GetHourBucket(rec.CreatedAt)

	registrations, deposits := 0, 0
	switch rec.EventType {
	case models.EventTypeRegistration:
		registrations = 1
	case models.EventTypeFirstDeposit, models.EventTypeDeposit:
		deposits = 1
	}

	statsQuery := `
	INSERT INTO affiliate_stats (
		affiliate_username, hour_bucket, total_registrations, total_deposits, total_commission
	)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (affiliate_username, hour_bucket)
	DO UPDATE SET
		total_registrations = affiliate_stats.total_registrations + EXCLUDED.total_registrations,
		total_deposits = affiliate_stats.total_deposits + EXCLUDED.total_deposits,
		total_commission = affiliate_stats.total_commission + EXCLUDED.total_commission
	`

	_, err = tx.ExecContext(ctx, statsQuery,
		rec.Affiliate,
		hourBucket,
		registrations,
		deposits,
		rec.Total,
	)
	if err != nil {
		return false, fmt.Errorf("upsert affiliate stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}

	return true, nil
}

func (r *CommissionRepo) GetAffiliateStats(ctx context.Context, username string) ([]models.AffiliateStats, error) {
	query := `
		SELECT affiliate_username, hour_bucket, total_registrations, total_deposits, total_commission
		FROM affiliate_stats
		WHERE affiliate_username = $1
		ORDER BY hour_bucket DESC
	`

	var stats []models.AffiliateStats
	if err := r.db.SelectContext(ctx, &stats, query, username); err != nil {
		return nil, fmt.Errorf("select affiliate stats: %w", err)
	}

	return stats, nil
}
