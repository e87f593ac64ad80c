package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventTypeRegistration EventType = "registration"
	EventTypeFirstDeposit EventType = "first_deposit"
	EventTypeDeposit      EventType = "deposit"
	EventTypeProfit       EventType = "profit"
)

type CommissionType string

const (
	CommissionTypeCPA      CommissionType = "CPA"
	CommissionTypeRevShare CommissionType = "RevShare"
	CommissionTypeHybrid   CommissionType = "Hybrid"
)

// House is a partner betting operator. Read-only from the engine's
// perspective; rows are created by an administrator.
type House struct {
	ID              int64               `db:"id" json:"id"`
	Identifier      string              `db:"identifier" json:"identifier"`
	Name            string              `db:"name" json:"name"`
	CommissionType  CommissionType      `db:"commission_type" json:"commission_type"`
	CommissionValue decimal.Decimal     `db:"commission_value" json:"commission_value"`
	CPAValue        decimal.NullDecimal `db:"cpa_value" json:"cpa_value,omitempty"`
	RevShareValue   decimal.NullDecimal `db:"revshare_value" json:"revshare_value,omitempty"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
}

// Affiliate is a referring user, correlated with the subid parameter.
type Affiliate struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PostbackRequest is the raw inbound postback before validation. Amount
// stays a string here: malformed values are tolerated, not rejected.
type PostbackRequest struct {
	HouseIdentifier string
	EventType       string
	SubID           string
	RawAmount       string
	CustomerID      string
}

type CommissionLineItem struct {
	Kind       CommissionType   `json:"type"`
	Value      decimal.Decimal  `json:"value"`
	Percentage *decimal.Decimal `json:"percentage,omitempty"`
}

// CommissionRecord is the durable ledger entry produced by one
// qualifying postback.
type CommissionRecord struct {
	ID              string          `db:"id"`
	HouseID         int64           `db:"house_id"`
	HouseIdentifier string          `db:"house_identifier"`
	AffiliateID     int64           `db:"affiliate_id"`
	Affiliate       string          `db:"affiliate_username"`
	EventType       EventType       `db:"event_type"`
	Amount          decimal.Decimal `db:"amount"`
	Total           decimal.Decimal `db:"total_commission"`
	Items           []CommissionLineItem
	CustomerID      string    `db:"customer_id"`
	IdempotencyKey  string    `db:"idempotency_key"`
	CreatedAt       time.Time `db:"created_at"`
}

// PostbackResult is the pipeline output handed to the HTTP layer.
type PostbackResult struct {
	Duplicate bool
	Affiliate string
	House     string
	EventType EventType
	Amount    decimal.Decimal
	Total     decimal.Decimal
	Items     []CommissionLineItem
	Timestamp time.Time
}

type AffiliateStats struct {
	AffiliateUsername  string          `db:"affiliate_username" json:"affiliate_username"`
	HourBucket         time.Time       `db:"hour_bucket" json:"hour_bucket"`
	TotalRegistrations int64           `db:"total_registrations" json:"total_registrations"`
	TotalDeposits      int64           `db:"total_deposits" json:"total_deposits"`
	TotalCommission    decimal.Decimal `db:"total_commission" json:"total_commission"`
}

// LedgerMessage is the payload published to the commission ledger topic.
type LedgerMessage struct {
	RecordID        string               `json:"record_id"`
	HouseIdentifier string               `json:"house"`
	Affiliate       string               `json:"affiliate"`
	EventType       EventType            `json:"event_type"`
	Amount          decimal.Decimal      `json:"amount"`
	Total           decimal.Decimal      `json:"total_commission"`
	Items           []CommissionLineItem `json:"commissions"`
	CustomerID      string               `json:"customer_id,omitempty"`
	Timestamp       time.Time            `json:"timestamp"`
}
