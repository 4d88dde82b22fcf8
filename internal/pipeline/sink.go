package pipeline

import (
	"context"

	"jobharbor/pkg/models"
)

// Sink is the storage write boundary. Upsert must be idempotent keyed by the
// posting's canonical ID, so at-least-once delivery from the pipeline is
// safe; exactly-once is enforced at the dedup index, not here. Transient
// failures are reported as *utils.SinkError and retried by the pipeline.
type Sink interface {
	Upsert(ctx context.Context, posting *models.Posting) error
}
