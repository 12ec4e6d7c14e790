package models

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alicesolutions/equity_backend/utils"
	"github.com/shopspring/decimal"
)

// OfferExpiryDays is how long a contribution offer stays acceptable.
const OfferExpiryDays = 30

var (
	MinOfferEquity = decimal.NewFromFloat(0.5)
	MaxOfferEquity = decimal.NewFromInt(5)
)

// StringList stores a JSON-encoded list in a text column.
type StringList []string

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	str, ok := coerceString(value)
	if !ok {
		return errors.New("string list must be string")
	}
	if str == "" {
		*l = nil
		return nil
	}
	return json.Unmarshal([]byte(str), l)
}

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	return string(b), err
}

// ContractOffer is a time-bound equity grant proposal to a recipient for a
// project. Offers are never deleted; terminal rows stay for audit.
type ContractOffer struct {
	ID               int              `gorm:"primary_key" json:"id"`
	BusinessId       string           `gorm:"index;not null" json:"business_id"`
	ProjectId        int              `gorm:"index;not null" json:"project_id"`
	RecipientId      int              `gorm:"index;not null" json:"recipient_id"`
	EquityPercentage decimal.Decimal  `gorm:"type:decimal(20,8);not null" json:"equity_percentage"`
	VestingSchedule  VestingSchedule  `gorm:"size:20;not null;default:IMMEDIATE" json:"vesting_schedule"`
	ContributionType ContributionType `gorm:"size:20;not null" json:"contribution_type"`
	EffortHours      int              `json:"effort_hours"`
	ImpactEstimate   int              `json:"impact_estimate"`
	Terms            string           `gorm:"type:text" json:"terms"`
	Deliverables     StringList       `gorm:"type:text" json:"deliverables"`
	Milestones       StringList       `gorm:"type:text" json:"milestones"`
	Status           ContractStatus   `gorm:"size:20;not null;default:PENDING;index" json:"status"`
	CreatedBy        int              `gorm:"not null" json:"created_by"`
	ExpiresAt        time.Time        `gorm:"not null" json:"expires_at"`
	AcceptedAt       *time.Time       `json:"accepted_at"`
	RejectedAt       *time.Time       `json:"rejected_at"`
	RejectionReason  *string          `gorm:"type:text" json:"rejection_reason"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`

	Project   *Project `gorm:"foreignKey:ProjectId" json:"project,omitempty"`
	Recipient *User    `gorm:"foreignKey:RecipientId" json:"recipient,omitempty"`
}

type NewContractOffer struct {
	ProjectId        int              `json:"project_id" binding:"required"`
	RecipientId      int              `json:"recipient_id" binding:"required"`
	EquityPercentage decimal.Decimal  `json:"equity_percentage" binding:"required"`
	VestingSchedule  VestingSchedule  `json:"vesting_schedule"`
	ContributionType ContributionType `json:"contribution_type" binding:"required"`
	EffortHours      int              `json:"effort_hours"`
	ImpactEstimate   int              `json:"impact_estimate"`
	Terms            string           `json:"terms"`
	Deliverables     StringList       `json:"deliverables"`
	Milestones       StringList       `json:"milestones"`
}

func (input *NewContractOffer) Validate() error {
	if input.EquityPercentage.LessThan(MinOfferEquity) || input.EquityPercentage.GreaterThan(MaxOfferEquity) {
		return utils.E(utils.ErrorKindValidation,
			fmt.Sprintf("equity percentage must be between %s and %s", MinOfferEquity, MaxOfferEquity))
	}
	if input.EffortHours < 0 {
		return utils.E(utils.ErrorKindValidation, "effort hours cannot be negative")
	}
	if input.ImpactEstimate < 0 || input.ImpactEstimate > 5 {
		return utils.E(utils.ErrorKindValidation, "impact estimate must be between 0 and 5")
	}
	return nil
}

// CanBeActionedBy runs the shared accept/reject guards: recipient identity,
// PENDING status, and (for accept) the lazy expiry check against now.
func (o *ContractOffer) CanBeActionedBy(userId int, now time.Time, checkExpiry bool) error {
	if o.RecipientId != userId {
		return utils.E(utils.ErrorKindAuthorization, "only the offer recipient may do this")
	}
	if o.Status != ContractStatusPending {
		return utils.E(utils.ErrorKindInvalidState, "offer is not pending")
	}
	if checkExpiry && now.After(o.ExpiresAt) {
		return utils.E(utils.ErrorKindExpired, "offer has expired")
	}
	return nil
}

func (o *ContractOffer) IsExpired(now time.Time) bool {
	return o.Status == ContractStatusPending && now.After(o.ExpiresAt)
}

// ContractSignature is an opaque integrity stamp over the acceptance, not a
// cryptographically binding signature.
type ContractSignature struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	ContractId int       `gorm:"uniqueIndex;not null" json:"contract_id"`
	SignerId   int       `gorm:"not null" json:"signer_id"`
	Digest     string    `gorm:"size:64;not null" json:"digest"`
	SignedAt   time.Time `gorm:"not null" json:"signed_at"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func NewContractSignature(offer *ContractOffer, signerId int, signedAt time.Time) *ContractSignature {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%d|%s|%d",
		offer.ID, signerId, offer.EquityPercentage, signedAt.UnixNano())))
	return &ContractSignature{
		BusinessId: offer.BusinessId,
		ContractId: offer.ID,
		SignerId:   signerId,
		Digest:     hex.EncodeToString(sum[:]),
		SignedAt:   signedAt,
	}
}
