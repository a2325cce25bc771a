package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/planexec/internal/logging"
)

// auditCapacity bounds the in-memory audit trail; the oldest entries are
// dropped beyond it. Audit entries are never persisted to the plan.
const auditCapacity = 256

// AuditEntry records one security-relevant action.
type AuditEntry struct {
	Timestamp time.Time
	Event     string
	Details   map[string]string
}

// AuditLog is an append-only, capped ring buffer of audit entries, with
// opt-in verbose emission to the console sink.
type AuditLog struct {
	entries []AuditEntry
	start   int
	verbose bool
	log     *logging.Logger
}

// NewAuditLog creates an audit log. When verbose is true every entry is
// also emitted through the logger.
func NewAuditLog(verbose bool, log *logging.Logger) *AuditLog {
	if log == nil {
		log = logging.NewNop()
	}
	return &AuditLog{
		entries: make([]AuditEntry, 0, auditCapacity),
		verbose: verbose,
		log:     log.Named("audit"),
	}
}

// Record appends an entry, dropping the oldest when full.
func (a *AuditLog) Record(event string, details map[string]string) {
	entry := AuditEntry{Timestamp: time.Now(), Event: event, Details: details}

	if len(a.entries) < auditCapacity {
		a.entries = append(a.entries, entry)
	} else {
		a.entries[a.start] = entry
		a.start = (a.start + 1) % auditCapacity
	}

	if a.verbose {
		fields := make([]zap.Field, 0, len(details)+1)
		fields = append(fields, zap.String("event", event))
		for k, v := range details {
			fields = append(fields, zap.String(k, v))
		}
		a.log.Info("audit", fields...)
	}
}

// Entries returns the recorded entries, oldest first.
func (a *AuditLog) Entries() []AuditEntry {
	out := make([]AuditEntry, 0, len(a.entries))
	out = append(out, a.entries[a.start:]...)
	out = append(out, a.entries[:a.start]...)
	return out
}
