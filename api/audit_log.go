package api

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/opsorch/opsorch-multiquery/logging"
)

// AuditLogEntry captures structured details for audit actions.
// Action is a dot-separated string, e.g. "query.dispatch", "environments.test".
type AuditLogEntry struct {
	RequestID string
	ActorType string
	ActorID   string
	Timestamp time.Time
	Action    string
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (e AuditLogEntry) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("request_id", e.RequestID)
	enc.AddString("actor_type", e.ActorType)
	enc.AddString("actor_id", e.ActorID)
	enc.AddTime("timestamp", e.Timestamp)
	enc.AddString("action", e.Action)
	return nil
}

func logAudit(r *http.Request, action string, fields ...zap.Field) {
	entry := AuditLogEntry{
		RequestID: requestIDFromRequest(r),
		ActorType: actorTypeFromRequest(r),
		ActorID:   actorIDFromRequest(r),
		Timestamp: time.Now().UTC(),
		Action:    action,
	}
	logging.FromContext(r.Context()).Info("audit_log", append([]zap.Field{zap.Object("audit", entry)}, fields...)...)
}

func actorTypeFromRequest(r *http.Request) string {
	typ := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Actor-Type")))
	switch typ {
	case "copilot", "cli":
		return typ
	default:
		return "user"
	}
}

func actorIDFromRequest(r *http.Request) string {
	for _, header := range []string{"X-User-Id", "X-User-ID", "X-Actor-ID", "X-OpsOrch-Actor-ID"} {
		if id := strings.TrimSpace(r.Header.Get(header)); id != "" {
			return id
		}
	}
	return "unknown"
}
