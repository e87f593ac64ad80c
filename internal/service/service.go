package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/eaidavid/sistema-sub001/internal/commission"
	"github.com/eaidavid/sistema-sub001/internal/models"
	"github.com/eaidavid/sistema-sub001/internal/repo/interfaces"
	"github.com/eaidavid/sistema-sub001/internal/utils"
)

var (
	ErrHouseNotFound     = errors.New("house not found")
	ErrAffiliateNotFound = errors.New("affiliate not found")
)

// IdempotencyGuard short-circuits retried deliveries. Optional.
type IdempotencyGuard interface {
	FirstDelivery(ctx context.Context, key string) (bool, error)
}

// LedgerPublisher streams recorded commissions to downstream consumers. Optional.
type LedgerPublisher interface {
	PublishCommission(ctx context.Context, msg models.LedgerMessage) error
}

// PostbackArchiver keeps raw copies of acknowledged postbacks. Optional.
type PostbackArchiver interface {
	Archive(ctx context.Context, houseIdentifier, recordID string, payload interface{}, timestamp time.Time) error
}

// BurstObserver flags houses sending at an abnormal rate. Optional.
type BurstObserver interface {
	Observe(ctx context.Context, houseIdentifier string) (bool, error)
}

type PostbackService struct {
	houses      interfaces.HouseRepo
	affiliates  interfaces.AffiliateRepo
	commissions interfaces.CommissionRepo

	guard    IdempotencyGuard
	ledger   LedgerPublisher
	archiver PostbackArchiver
	burst    BurstObserver

	lookupTimeout time.Duration
	log           *logrus.Logger
}

type Config struct {
	Guard         IdempotencyGuard
	Ledger        LedgerPublisher
	Archiver      PostbackArchiver
	Burst         BurstObserver
	LookupTimeout time.Duration
	Logger        *logrus.Logger
}

func NewPostbackService(houses interfaces.HouseRepo, affiliates interfaces.AffiliateRepo, commissions interfaces.CommissionRepo, cfg Config) *PostbackService {
	if cfg.LookupTimeout == 0 {
		cfg.LookupTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	return &PostbackService{
		houses:        houses,
		affiliates:    affiliates,
		commissions:   commissions,
		guard:         cfg.Guard,
		ledger:        cfg.Ledger,
		archiver:      cfg.Archiver,
		burst:         cfg.Burst,
		lookupTimeout: cfg.LookupTimeout,
		log:           cfg.Logger,
	}
}

type houseResult struct {
	house *models.House
	err   error
}

type affiliateResult struct {
	affiliate *models.Affiliate
	err       error
}

// ProcessPostback runs one inbound postback through validation,
// directory resolution, commission evaluation and persistence. The
// caller maps the returned error onto the HTTP taxonomy: ValidationError
// and the NotFound sentinels are expected outcomes, anything else is a
// backend fault.
func (s *PostbackService) ProcessPostback(ctx context.Context, pb *models.PostbackRequest) (*models.PostbackResult, error) {
	stageLog := s.log.WithFields(logrus.Fields{
		"house": pb.HouseIdentifier,
		"event": pb.EventType,
		"subid": pb.SubID,
	})
	stageLog.Info("postback received")

	if err := validateRequest(pb); err != nil {
		stageLog.WithError(err).Warn("postback validation failed")
		return nil, err
	}

	amount := parseAmount(pb.RawAmount)
	eventType := models.EventType(pb.EventType)

	s.observeBurst(ctx, pb.HouseIdentifier, stageLog)

	idemKey := idempotencyKey(pb)
	if s.guard != nil && idemKey != "" {
		first, err := s.guard.FirstDelivery(ctx, idemKey)
		if err != nil {
			// Acknowledge-first posture: the unique key in Postgres
			// still prevents double-crediting.
			stageLog.WithError(err).Warn("idempotency guard unavailable, continuing")
		} else if !first {
			stageLog.Info("duplicate delivery short-circuited")
			return &models.PostbackResult{
				Duplicate: true,
				EventType: eventType,
				Amount:    amount,
				Total:     decimal.Zero,
				Timestamp: time.Now(),
			}, nil
		}
	}

	stageLog.Info("resolving house and affiliate")
	house, affiliate, err := s.resolveDirectories(ctx, pb.HouseIdentifier, pb.SubID)
	if err != nil {
		switch {
		case errors.Is(err, ErrHouseNotFound):
			stageLog.Warn("house not found")
		case errors.Is(err, ErrAffiliateNotFound):
			stageLog.Warn("affiliate not found")
		default:
			stageLog.WithError(err).Error("directory lookup failed")
		}
		return nil, err
	}

	stageLog.Info("evaluating commission")
	items := commission.Evaluate(house, eventType, amount)
	total := commission.Total(items)

	record := &models.CommissionRecord{
		ID:              uuid.NewString(),
		HouseID:         house.ID,
		HouseIdentifier: house.Identifier,
		AffiliateID:     affiliate.ID,
		Affiliate:       affiliate.Username,
		EventType:       eventType,
		Amount:          amount,
		Total:           total,
		Items:           items,
		CustomerID:      pb.CustomerID,
		IdempotencyKey:  idemKey,
		CreatedAt:       time.Now(),
	}

	stageLog.WithField("total", total.StringFixed(2)).Info("recording commission")
	inserted, err := s.commissions.RecordCommission(ctx, record)
	if err != nil {
		stageLog.WithError(err).Error("record commission failed")
		return nil, fmt.Errorf("record commission: %w", err)
	}

	result := &models.PostbackResult{
		Duplicate: !inserted,
		Affiliate: affiliate.Username,
		House:     house.Name,
		EventType: eventType,
		Amount:    amount,
		Total:     total,
		Items:     items,
		Timestamp: record.CreatedAt,
	}

	if inserted {
		s.publishLedger(record)
		s.archiveRaw(pb, record)
	}

	stageLog.Info("postback completed")
	return result, nil
}

// resolveDirectories issues the two lookups concurrently; they have no
// data dependency on each other. Both results are joined before the
// pipeline proceeds, and a missing house wins over a missing affiliate
// when both are absent.
func (s *PostbackService) resolveDirectories(ctx context.Context, houseIdentifier, subID string) (*models.House, *models.Affiliate, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	houseCh := make(chan houseResult, 1)
	affiliateCh := make(chan affiliateResult, 1)

	go func() {
		house, err := s.houses.FindByIdentifier(lookupCtx, houseIdentifier)
		houseCh <- houseResult{house: house, err: err}
	}()

	go func() {
		affiliate, err := s.affiliates.FindByUsername(lookupCtx, subID)
		affiliateCh <- affiliateResult{affiliate: affiliate, err: err}
	}()

	hr := <-houseCh
	ar := <-affiliateCh

	if hr.err != nil {
		return nil, nil, fmt.Errorf("resolve house: %w", hr.err)
	}
	if ar.err != nil {
		return nil, nil, fmt.Errorf("resolve affiliate: %w", ar.err)
	}
	if hr.house == nil {
		return nil, nil, ErrHouseNotFound
	}
	if ar.affiliate == nil {
		return nil, nil, ErrAffiliateNotFound
	}

	return hr.house, ar.affiliate, nil
}

func (s *PostbackService) GetAffiliateStats(ctx context.Context, username string) ([]models.AffiliateStats, error) {
	if username == "" {
		return nil, &utils.ValidationError{Field: "username", Message: "username is required"}
	}

	stats, err := s.commissions.GetAffiliateStats(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("get affiliate stats: %w", err)
	}
	return stats, nil
}

func (s *PostbackService) ListHouses(ctx context.Context) ([]models.House, error) {
	houses, err := s.houses.ListHouses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list houses: %w", err)
	}
	return houses, nil
}

func (s *PostbackService) observeBurst(ctx context.Context, houseIdentifier string, stageLog *logrus.Entry) {
	if s.burst == nil {
		return
	}

	exceeded, err := s.burst.Observe(ctx, houseIdentifier)
	if err != nil {
		stageLog.WithError(err).Warn("burst watch unavailable")
		return
	}
	if exceeded {
		stageLog.Warn("house exceeding postback burst threshold")
	}
}

// publishLedger is fire-and-forget: durability is owned by Postgres and
// the write has already committed.
func (s *PostbackService) publishLedger(record *models.CommissionRecord) {
	if s.ledger == nil {
		return
	}

	msg := models.LedgerMessage{
		RecordID:        record.ID,
		HouseIdentifier: record.HouseIdentifier,
		Affiliate:       record.Affiliate,
		EventType:       record.EventType,
		Amount:          record.Amount,
		Total:           record.Total,
		Items:           record.Items,
		CustomerID:      record.CustomerID,
		Timestamp:       record.CreatedAt,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.ledger.PublishCommission(ctx, msg); err != nil {
			s.log.WithError(err).Warn("ledger publish failed")
		}
	}()
}

func (s *PostbackService) archiveRaw(pb *models.PostbackRequest, record *models.CommissionRecord) {
	if s.archiver == nil {
		return
	}

	payload := map[string]interface{}{
		"house":       pb.HouseIdentifier,
		"event_type":  pb.EventType,
		"subid":       pb.SubID,
		"amount":      pb.RawAmount,
		"customer_id": pb.CustomerID,
		"record_id":   record.ID,
		"received_at": record.CreatedAt.Format(time.RFC3339),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.archiver.Archive(ctx, pb.HouseIdentifier, record.ID, payload, record.CreatedAt); err != nil {
			s.log.WithError(err).Warn("postback archive failed")
		}
	}()
}

func validateRequest(pb *models.PostbackRequest) error {
	if pb == nil {
		return &utils.ValidationError{Field: "postback", Message: "postback is nil"}
	}
	if strings.TrimSpace(pb.HouseIdentifier) == "" {
		return &utils.ValidationError{Field: "house", Message: "house identifier is required"}
	}
	if strings.TrimSpace(pb.EventType) == "" {
		return &utils.ValidationError{Field: "event_type", Message: "event type is required"}
	}
	if strings.TrimSpace(pb.SubID) == "" {
		return &utils.ValidationError{Field: "subid", Message: "subid is required"}
	}
	return nil
}

// parseAmount is deliberately tolerant: a webhook receiver acknowledges
// what it can. Malformed or negative amounts contribute zero.
func parseAmount(raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil || amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// idempotencyKey derives a stable key from the fields a retried delivery
// repeats verbatim. Without a customer id there is nothing to key on.
func idempotencyKey(pb *models.PostbackRequest) string {
	if pb.CustomerID == "" {
		return ""
	}

	sum := sha256.Sum256([]byte(pb.HouseIdentifier + "|" + pb.EventType + "|" + pb.CustomerID))
	return hex.EncodeToString(sum[:])
}
