package models

import (
	"context"
	"errors"
	"time"

	"github.com/alicesolutions/equity_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type User struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"index;not null" json:"business_id"`
	Username   string `gorm:"size:100;not null" json:"username"`
	Password   string `gorm:"size:255;not null" json:"-"`
	Role       string `gorm:"size:50;not null;default:member" json:"role"`
	IsActive   *bool  `gorm:"not null;default:true" json:"is_active"`

	// Denormalized portfolio snapshot, refreshed on each accepted offer.
	// A read cache; the cap table stays the source of truth.
	TotalEquityOwned        decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"total_equity_owned"`
	AverageEquityPerProject decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"average_equity_per_project"`
	PortfolioDiversity      int             `gorm:"default:0" json:"portfolio_diversity"`
	LastEquityEarnedAt      *time.Time      `json:"last_equity_earned_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role"`
}

func CreateUser(db *gorm.DB, ctx context.Context, input *NewUser) (*User, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateUnique[User](db, ctx, businessId, "username", input.Username, 0); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	role := input.Role
	if role == "" {
		role = "member"
	}
	user := User{
		BusinessId: businessId,
		Username:   input.Username,
		Password:   string(hashed),
		Role:       role,
		IsActive:   utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUser(db *gorm.DB, ctx context.Context, id int) (*User, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[User](db, ctx, businessId, id)
}

func SignIn(db *gorm.DB, ctx context.Context, businessId string, username string, password string) (*User, string, error) {
	var user User
	err := db.WithContext(ctx).
		Where("business_id = ? AND username = ?", businessId, username).
		First(&user).Error
	if err != nil {
		return nil, "", utils.E(utils.ErrorKindAuthorization, "invalid credentials")
	}
	if err := utils.ComparePassword(user.Password, password); err != nil {
		return nil, "", utils.E(utils.ErrorKindAuthorization, "invalid credentials")
	}
	token, err := utils.JwtGenerate(user.ID, user.BusinessId, user.Role)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}
