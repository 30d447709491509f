package services

import (
	"sync"
	"time"

	"github.com/cinestream/server/internal/models"
	"github.com/cinestream/server/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	auditQueueSize  = 1000
	auditBatchSize  = 50
	auditFlushEvery = 500 * time.Millisecond
)

type AuditEntry struct {
	ActorID      *uuid.UUID
	ActorEmail   string
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	Details      map[string]interface{}
	ClientIP     string
	RequestID    string
}

// AuditService buffers audit rows and inserts them in batches from one
// goroutine. Handlers never wait on the database.
type AuditService struct {
	DB *gorm.DB

	mu     sync.RWMutex
	closed bool
	queue  chan models.AuditLog
	done   chan struct{}
}

func NewAuditService(db *gorm.DB) *AuditService {
	s := &AuditService{
		DB:    db,
		queue: make(chan models.AuditLog, auditQueueSize),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

// LogAsync enqueues entry. Entries are dropped with a warning when the queue
// is full or the service is closed.
func (s *AuditService) LogAsync(entry AuditEntry) {
	if s == nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		logger.Warn("audit_entry_dropped", map[string]interface{}{
			"action": entry.Action,
			"reason": "closed",
		})
		return
	}

	row := models.AuditLog{
		ActorID:      entry.ActorID,
		ActorEmail:   entry.ActorEmail,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Details:      entry.Details,
		ClientIP:     entry.ClientIP,
		RequestID:    entry.RequestID,
		CreatedAt:    time.Now().UTC(),
	}
	select {
	case s.queue <- row:
	default:
		logger.Warn("audit_entry_dropped", map[string]interface{}{
			"action": entry.Action,
			"reason": "queue_full",
		})
	}
}

func (s *AuditService) run() {
	defer close(s.done)

	ticker := time.NewTicker(auditFlushEvery)
	defer ticker.Stop()

	batch := make([]models.AuditLog, 0, auditBatchSize)
	for {
		select {
		case row, ok := <-s.queue:
			if !ok {
				s.flush(batch)
				return
			}
			batch = append(batch, row)
			if len(batch) >= auditBatchSize {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *AuditService) flush(batch []models.AuditLog) {
	if len(batch) == 0 {
		return
	}
	if err := s.DB.CreateInBatches(batch, auditBatchSize).Error; err != nil {
		logger.Error("audit_log_insert_failed", err, map[string]interface{}{
			"rows":         len(batch),
			"first_action": batch[0].Action,
		})
	}
}

// Close stops accepting entries, then waits at most timeout for queued rows
// to be written.
func (s *AuditService) Close(timeout time.Duration) {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
	case <-time.After(timeout):
		logger.Warn("audit_drain_timeout", map[string]interface{}{
			"pending": len(s.queue),
		})
	}
}
