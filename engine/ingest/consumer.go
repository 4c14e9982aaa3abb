package ingest

import (
	"context"
	"log/slog"

	"github.com/WessleyAI/catalog-search/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

const (
	// IngestSubject carries IngestRequest messages.
	IngestSubject = "catalog.ingest"
	// DLQSubject receives requests whose run failed. Failed runs are not retried.
	DLQSubject = "catalog.ingest.dlq"
	// WorkerQueue is the queue group shared by ingestion workers.
	WorkerQueue = "catalog-ingest-workers"
)

// IngestRequest asks a worker to load the catalog at SourceURL.
type IngestRequest struct {
	SourceURL string `json:"source_url"`
}

// IngestReply is sent back to requesters that set a reply subject.
type IngestReply struct {
	Count   int    `json:"count"`
	Batches int    `json:"batches"`
	Error   string `json:"error,omitempty"`
}

type dlqMessage struct {
	Request IngestRequest `json:"request"`
	Error   string        `json:"error"`
}

// StartConsumer runs each IngestRequest received on IngestSubject through p.
func StartConsumer(nc *nats.Conn, p *Pipeline, log *slog.Logger) (*nats.Subscription, error) {
	if log == nil {
		log = slog.Default()
	}
	return natsutil.Respond(nc, IngestSubject, WorkerQueue, func(ctx context.Context, req IngestRequest) IngestReply {
		if req.SourceURL == "" {
			log.Warn("ingest: request without source_url")
			return IngestReply{Error: "source_url is required"}
		}

		sum, err := p.Ingest(ctx, req.SourceURL)
		if err != nil {
			dlq := dlqMessage{Request: req, Error: err.Error()}
			if perr := natsutil.Publish(ctx, nc, DLQSubject, dlq); perr != nil {
				log.Error("ingest: DLQ publish failed", "error", perr)
			}
			// The requester only learns that the run failed.
			return IngestReply{Error: "ingestion failed"}
		}
		return IngestReply{Count: sum.Count, Batches: sum.Batches}
	})
}
