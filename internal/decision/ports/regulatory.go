package ports

import (
	"iter"

	"compliancelab/internal/regulatory"
)

// ContextRetriever looks up explanatory regulatory text for a verdict.
// An empty topic matches every topic of the jurisdiction.
type ContextRetriever interface {
	Search(jurisdiction, topic string) iter.Seq[regulatory.Snippet]
}
