package models

import "time"

// IdempotencyKey makes batch handlers safe under duplicate triggers
// (cron overlap, manual re-runs, at-least-once schedulers).
type IdempotencyKey struct {
	ID          int               `gorm:"primary_key" json:"id"`
	BusinessId  string            `gorm:"uniqueIndex:ux_idem;size:64;not null" json:"business_id"`
	HandlerName string            `gorm:"uniqueIndex:ux_idem;size:100;not null" json:"handler_name"`
	MessageId   string            `gorm:"uniqueIndex:ux_idem;size:100;not null" json:"message_id"`
	Status      IdempotencyStatus `gorm:"size:20;not null" json:"status"`
	LastError   *string           `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}
