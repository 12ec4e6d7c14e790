package models

import (
	"log"

	"gorm.io/gorm"
)

func MigrateTable(db *gorm.DB) {
	err := db.AutoMigrate(
		&Project{}, &User{},
		&ContractOffer{}, &ContractSignature{},
		&CapTableEntry{},
		&EquityVesting{}, &VestingEvent{},
		&AuditEvent{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
