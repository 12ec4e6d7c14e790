package workflow

import (
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Engine runs the equity offer lifecycle: offer creation, acceptance and
// rejection, cap-table posting, vesting processing, and portfolio reads.
// All dependencies are injected; the engine holds no globals.
type Engine struct {
	db     *gorm.DB
	logger *logrus.Logger
	clock  Clock
	audit  *AuditRecorder
}

func NewEngine(db *gorm.DB, logger *logrus.Logger, clock Clock, audit *AuditRecorder) *Engine {
	if clock == nil {
		clock = RealClock{}
	}
	return &Engine{db: db, logger: logger, clock: clock, audit: audit}
}
