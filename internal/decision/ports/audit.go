package ports

import (
	"context"

	"compliancelab/internal/audit"
)

// AuditPort defines the interface for emitting audit events.
// This matches audit.Emitter but is defined here to keep the decision
// module free of publisher details.
type AuditPort interface {
	Emit(ctx context.Context, event audit.Event) error
}
