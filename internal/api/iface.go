package api

import (
	"context"

	"research-cli/internal/protocol"
)

// ResearchAPI defines the interface for the research backend client.
// *Client satisfies this interface. TUI and tests can use mock implementations.
type ResearchAPI interface {
	SubmitResearch(ctx context.Context, r ResearchRequest) (*ResearchResponse, error)
	JobSnapshot(ctx context.Context, jobID string) (protocol.Snapshot, error)
	Report(ctx context.Context, jobID string) (string, error)
	StreamChat(ctx context.Context, r ChatRequest, onChunk ChunkCallback) error
	WebSocketURL(jobID string) (string, error)
}

var _ ResearchAPI = (*Client)(nil)
