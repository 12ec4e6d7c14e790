package models

import (
	"time"

	"gorm.io/gorm"
)

// AuditEvent is the append-only trail written for every contract state
// change. Writes are fire-and-forget: an audit failure never unwinds the
// business transaction it describes.
type AuditEvent struct {
	ID            int         `gorm:"primary_key" json:"id"`
	BusinessId    string      `gorm:"index;not null" json:"business_id"`
	EntityKind    string      `gorm:"size:50;not null" json:"entity_kind"`
	EntityId      int         `gorm:"index;not null" json:"entity_id"`
	Action        AuditAction `gorm:"size:20;not null" json:"action"`
	ActorId       int         `json:"actor_id"`
	Payload       string      `gorm:"type:text" json:"payload"`
	CorrelationId string      `gorm:"size:36;index" json:"correlation_id"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

func InsertAuditEvent(db *gorm.DB, event *AuditEvent) error {
	return db.Create(event).Error
}
