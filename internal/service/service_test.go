package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eaidavid/sistema-sub001/internal/models"
	"github.com/eaidavid/sistema-sub001/internal/utils"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fakeDirectory struct {
	houses     map[string]*models.House
	affiliates map[string]*models.Affiliate
	lookupErr  error
}

func (f *fakeDirectory) FindByIdentifier(ctx context.Context, identifier string) (*models.House, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.houses[identifier], nil
}

func (f *fakeDirectory) ListHouses(ctx context.Context) ([]models.House, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	var out []models.House
	for _, h := range f.houses {
		out = append(out, *h)
	}
	return out, nil
}

func (f *fakeDirectory) FindByUsername(ctx context.Context, username string) (*models.Affiliate, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.affiliates[username], nil
}

type fakeCommissionRepo struct {
	records   []*models.CommissionRecord
	seen      map[string]bool
	recordErr error
}

func (f *fakeCommissionRepo) RecordCommission(ctx context.Context, rec *models.CommissionRecord) (bool, error) {
	if f.recordErr != nil {
		return false, f.recordErr
	}
	if rec.IdempotencyKey != "" {
		if f.seen == nil {
			f.seen = make(map[string]bool)
		}
		if f.seen[rec.IdempotencyKey] {
			return false, nil
		}
		f.seen[rec.IdempotencyKey] = true
	}
	f.records = append(f.records, rec)
	return true, nil
}

func (f *fakeCommissionRepo) GetAffiliateStats(ctx context.Context, username string) ([]models.AffiliateStats, error) {
	return nil, nil
}

type fakeGuard struct {
	delivered map[string]bool
	err       error
}

func (f *fakeGuard) FirstDelivery(ctx context.Context, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.delivered == nil {
		f.delivered = make(map[string]bool)
	}
	if f.delivered[key] {
		return false, nil
	}
	f.delivered[key] = true
	return true, nil
}

func bet365Directory() *fakeDirectory {
	return &fakeDirectory{
		houses: map[string]*models.House{
			"bet365": {
				ID:              1,
				Identifier:      "bet365",
				Name:            "Bet365",
				CommissionType:  models.CommissionTypeHybrid,
				CommissionValue: dec("30"),
				CPAValue:        decimal.NullDecimal{Decimal: dec("50"), Valid: true},
				RevShareValue:   decimal.NullDecimal{Decimal: dec("20"), Valid: true},
			},
		},
		affiliates: map[string]*models.Affiliate{
			"joao": {ID: 7, Username: "joao", Name: "João"},
		},
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestService(dir *fakeDirectory, commissions *fakeCommissionRepo, cfg Config) *PostbackService {
	cfg.Logger = quietLogger()
	return NewPostbackService(dir, dir, commissions, cfg)
}

func TestProcessPostbackFirstDeposit(t *testing.T) {
	commissions := &fakeCommissionRepo{}
	svc := newTestService(bet365Directory(), commissions, Config{})

	result, err := svc.ProcessPostback(context.Background(), &models.PostbackRequest{
		HouseIdentifier: "bet365",
		EventType:       "first_deposit",
		SubID:           "joao",
	})
	require.NoError(t, err)

	assert.False(t, result.Duplicate)
	assert.Equal(t, "joao", result.Affiliate)
	assert.Equal(t, "Bet365", result.House)
	assert.Equal(t, "50.00", result.Total.StringFixed(2))
	require.Len(t, result.Items, 1)
	assert.Equal(t, models.CommissionTypeCPA, result.Items[0].Kind)
	assert.True(t, result.Items[0].Value.Equal(dec("50")))
	assert.False(t, result.Timestamp.IsZero())

	require.Len(t, commissions.records, 1)
	rec := commissions.records[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, int64(1), rec.HouseID)
	assert.Equal(t, int64(7), rec.AffiliateID)
	assert.True(t, rec.Total.Equal(dec("50")))
}

func TestProcessPostbackDeposit(t *testing.T) {
	commissions := &fakeCommissionRepo{}
	svc := newTestService(bet365Directory(), commissions, Config{})

	result, err := svc.ProcessPostback(context.Background(), &models.PostbackRequest{
		HouseIdentifier: "bet365",
		EventType:       "deposit",
		SubID:           "joao",
		RawAmount:       "200",
	})
	require.NoError(t, err)

	assert.Equal(t, "40.00", result.Total.StringFixed(2))
	require.Len(t, result.Items, 1)
	assert.Equal(t, models.CommissionTypeRevShare, result.Items[0].Kind)
	require.NotNil(t, result.Items[0].Percentage)
	assert.True(t, result.Items[0].Percentage.Equal(dec("20")))
}

func TestProcessPostbackUnknownEventTypeStillAcknowledged(t *testing.T) {
	commissions := &fakeCommissionRepo{}
	svc := newTestService(bet365Directory(), commissions, Config{})

	result, err := svc.ProcessPostback(context.Background(), &models.PostbackRequest{
		HouseIdentifier: "bet365",
		EventType:       "click",
		SubID:           "joao",
	})
	require.NoError(t, err)

	assert.Empty(t, result.Items)
	assert.True(t, result.Total.IsZero())
	// zero-yield events are still recorded for the audit trail
	require.Len(t, commissions.records, 1)
}

func TestProcessPostbackMalformedAmountIsZero(t *testing.T) {
	svc := newTestService(bet365Directory(), &fakeCommissionRepo{}, Config{})

	result, err := svc.ProcessPostback(context.Background(), &models.PostbackRequest{
		HouseIdentifier: "bet365",
		EventType:       "deposit",
		SubID:           "joao",
		RawAmount:       "not-a-number",
	})
	require.NoError(t, err)

	assert.True(t, result.Amount.IsZero())
	assert.Empty(t, result.Items)
	assert.True(t, result.Total.IsZero())
}

func TestProcessPostbackNegativeAmountIsZero(t *testing.T) {
	svc := newTestService(bet365Directory(), &fakeCommissionRepo{}, Config{})

	result, err := svc.ProcessPostback(context.Background(), &models.PostbackRequest{
		HouseIdentifier: "bet365",
		EventType:       "deposit",
		SubID:           "joao",
		RawAmount:       "-200",
	})
	require.NoError(t, err)
	assert.True(t, result.Amount.IsZero())
	assert.Empty(t, result.Items)
}

func TestProcessPostbackValidation(t *testing.T) {
	svc := newTestService(bet365Directory(), &fakeCommissionRepo{}, Config{})

	cases := []struct {
		name string
		pb   *models.PostbackRequest
	}{
		{"missing house", &models.PostbackRequest{EventType: "deposit", SubID: "joao"}},
		{"missing event type", &models.PostbackRequest{HouseIdentifier: "bet365", SubID: "joao"}},
		{"missing subid", &models.PostbackRequest{HouseIdentifier: "bet365", EventType: "deposit"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ProcessPostback(context.Background(), tc.pb)
			var validationErr *utils.ValidationError
			require.ErrorAs(t, err, &validationErr)
		})
	}
}

func TestProcessPostbackHouseNotFound(t *testing.T) {
	svc := newTestService(bet365Directory(), &fakeCommissionRepo{}, Config{})

	_, err := svc.ProcessPostback(context.Background(), &models.PostbackRequest{
		HouseIdentifier: "nope",
		EventType:       "deposit",
		SubID:           "joao",
	})
	require.ErrorIs(t, err, ErrHouseNotFound)
}

func TestProcessPostbackAffiliateNotFound(t *testing.T) {
	svc := newTestService(bet365Directory(), &fakeCommissionRepo{}, Config{})

	_, err := svc.ProcessPostback(context.Background(), &models.PostbackRequest{
		HouseIdentifier: "bet365",
		EventType:       "deposit",
		SubID:           "nobody",
	})
	require.ErrorIs(t, err, ErrAffiliateNotFound)
}

func TestProcessPostbackLookupFailure(t *testing.T) {
	dir := bet365Directory()
	dir.lookupErr = errors.New("connection refused")
	svc := newTestService(dir, &fakeCommissionRepo{}, Config{})

	_, err := svc.ProcessPostback(context.Background(), &models.PostbackRequest{
		HouseIdentifier: "bet365",
		EventType:       "deposit",
		SubID:           "joao",
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrHouseNotFound)
	assert.NotErrorIs(t, err, ErrAffiliateNotFound)
}

func TestProcessPostbackRecordFailure(t *testing.T) {
	commissions := &fakeCommissionRepo{recordErr: errors.New("db down")}
	svc := newTestService(bet365Directory(), commissions, Config{})

	_, err := svc.ProcessPostback(context.Background(), &models.PostbackRequest{
		HouseIdentifier: "bet365",
		EventType:       "first_deposit",
		SubID:           "joao",
	})
	require.Error(t, err)
}

func TestProcessPostbackDuplicateShortCircuit(t *testing.T) {
	commissions := &fakeCommissionRepo{}
	svc := newTestService(bet365Directory(), commissions, Config{Guard: &fakeGuard{}})

	pb := &models.PostbackRequest{
		HouseIdentifier: "bet365",
		EventType:       "first_deposit",
		SubID:           "joao",
		CustomerID:      "cust-42",
	}

	first, err := svc.ProcessPostback(context.Background(), pb)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := svc.ProcessPostback(context.Background(), pb)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)

	// only the first delivery reaches the ledger
	assert.Len(t, commissions.records, 1)
}

func TestProcessPostbackGuardFailureFallsThroughToRepo(t *testing.T) {
	commissions := &fakeCommissionRepo{}
	svc := newTestService(bet365Directory(), commissions, Config{Guard: &fakeGuard{err: errors.New("redis down")}})

	pb := &models.PostbackRequest{
		HouseIdentifier: "bet365",
		EventType:       "first_deposit",
		SubID:           "joao",
		CustomerID:      "cust-42",
	}

	first, err := svc.ProcessPostback(context.Background(), pb)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	// the repo's idempotency key still catches the retry
	second, err := svc.ProcessPostback(context.Background(), pb)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Len(t, commissions.records, 1)
}

func TestProcessPostbackNoCustomerIDIsNotDeduplicated(t *testing.T) {
	commissions := &fakeCommissionRepo{}
	svc := newTestService(bet365Directory(), commissions, Config{Guard: &fakeGuard{}})

	pb := &models.PostbackRequest{
		HouseIdentifier: "bet365",
		EventType:       "first_deposit",
		SubID:           "joao",
	}

	for i := 0; i < 2; i++ {
		result, err := svc.ProcessPostback(context.Background(), pb)
		require.NoError(t, err)
		assert.False(t, result.Duplicate)
	}
	assert.Len(t, commissions.records, 2)
}

func TestIdempotencyKey(t *testing.T) {
	a := idempotencyKey(&models.PostbackRequest{HouseIdentifier: "bet365", EventType: "deposit", CustomerID: "c1"})
	b := idempotencyKey(&models.PostbackRequest{HouseIdentifier: "bet365", EventType: "deposit", CustomerID: "c1"})
	c := idempotencyKey(&models.PostbackRequest{HouseIdentifier: "bet365", EventType: "deposit", CustomerID: "c2"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Empty(t, idempotencyKey(&models.PostbackRequest{HouseIdentifier: "bet365", EventType: "deposit"}))
}

func TestParseAmount(t *testing.T) {
	assert.True(t, parseAmount("").IsZero())
	assert.True(t, parseAmount("  ").IsZero())
	assert.True(t, parseAmount("abc").IsZero())
	assert.True(t, parseAmount("-5").IsZero())
	assert.True(t, parseAmount("200").Equal(dec("200")))
	assert.True(t, parseAmount(" 19.90 ").Equal(dec("19.90")))
}

type stalledDirectory struct {
	fakeDirectory
}

func (s *stalledDirectory) FindByIdentifier(ctx context.Context, identifier string) (*models.House, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestLookupTimeoutIsBounded(t *testing.T) {
	dir := &stalledDirectory{fakeDirectory: *bet365Directory()}
	svc := NewPostbackService(dir, &dir.fakeDirectory, &fakeCommissionRepo{}, Config{
		LookupTimeout: 50 * time.Millisecond,
		Logger:        quietLogger(),
	})

	start := time.Now()
	_, err := svc.ProcessPostback(context.Background(), &models.PostbackRequest{
		HouseIdentifier: "bet365",
		EventType:       "registration",
		SubID:           "joao",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}
