package workflow

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/alicesolutions/equity_backend/config"
	"github.com/alicesolutions/equity_backend/models"
	"github.com/alicesolutions/equity_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuditRecorder appends one immutable row per contract state change through a
// best-effort side channel: a buffered queue drained by a background writer.
// Record never blocks and never surfaces an error; a lost audit row is a
// lesser harm than blocking a successful business transaction.
type AuditRecorder struct {
	logger  *logrus.Logger
	queue   chan *models.AuditEvent
	done    chan struct{}
	once    sync.Once
	persist func(*models.AuditEvent) error
}

func NewAuditRecorder(db *gorm.DB, logger *logrus.Logger) *AuditRecorder {
	r := &AuditRecorder{
		logger: logger,
		queue:  make(chan *models.AuditEvent, 256),
		done:   make(chan struct{}),
		persist: func(event *models.AuditEvent) error {
			return models.InsertAuditEvent(db, event)
		},
	}
	go r.run()
	return r
}

func (r *AuditRecorder) run() {
	for event := range r.queue {
		if err := r.persist(event); err != nil {
			config.LogError(r.logger, "auditRecorder.go", "run", "persist", event, err)
		}
	}
	close(r.done)
}

// Record enqueues the event. Queue-full drops are logged, not reported.
func (r *AuditRecorder) Record(ctx context.Context, entityKind string, entityId int, action models.AuditAction, actorId int, payload interface{}) {
	if r == nil {
		return
	}

	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	correlationId, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || correlationId == "" {
		correlationId = uuid.NewString()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		config.LogError(r.logger, "auditRecorder.go", "Record", "marshal payload", entityId, err)
		body = []byte("{}")
	}

	event := &models.AuditEvent{
		BusinessId:    businessId,
		EntityKind:    entityKind,
		EntityId:      entityId,
		Action:        action,
		ActorId:       actorId,
		Payload:       string(body),
		CorrelationId: correlationId,
	}

	select {
	case r.queue <- event:
	default:
		config.LogWarn(r.logger, "auditRecorder.go", "Record", "queue full", event, "audit event dropped")
	}
}

// Close drains the queue and stops the writer. Safe to call more than once.
func (r *AuditRecorder) Close() {
	r.once.Do(func() {
		close(r.queue)
	})
	<-r.done
}
