// Package connection keeps a research job's status stream alive, falling back
// to polling when the WebSocket cannot be kept open.
package connection

import (
	"context"
	"errors"

	"research-cli/internal/protocol"
)

// State is the lifecycle of the persistent channel.
type State int

const (
	// StateClosed is a manager that is not open, was closed by its owner, or
	// whose job completed.
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateClosedRetrying
	StateClosedPolling
	// StateClosedFailed means the job itself failed; nothing reconnects.
	StateClosedFailed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedRetrying:
		return "closed-retrying"
	case StateClosedPolling:
		return "closed-polling"
	case StateClosedFailed:
		return "closed-failed"
	default:
		return "unknown"
	}
}

var (
	ErrEmptyJobID  = errors.New("job id is required")
	ErrAlreadyOpen = errors.New("connection manager already opened")
	ErrClosed      = errors.New("connection manager closed")
)

// Conn is one open status stream.
type Conn interface {
	// ReadMessage blocks until the next frame arrives or the stream ends.
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens the status stream of a job.
type Dialer interface {
	Dial(ctx context.Context, jobID string) (Conn, error)
}

// Poller fetches a job status snapshot. *api.Client satisfies it.
type Poller interface {
	JobSnapshot(ctx context.Context, jobID string) (protocol.Snapshot, error)
}

// Update is something the manager reports to its owner. The set of
// implementations is closed: EventUpdate, StateUpdate and AdvisoryUpdate.
type Update interface {
	isUpdate()
}

// EventUpdate carries one decoded status event, from the stream or
// synthesized from a polled snapshot.
type EventUpdate struct {
	Event protocol.Event
	// Polled is set for events synthesized from a snapshot.
	Polled bool
}

// StateUpdate reports a connection state transition.
type StateUpdate struct {
	From State
	To   State
	Err  error
}

// AdvisoryUpdate is a non-fatal notice about the connection.
type AdvisoryUpdate struct {
	protocol.Advisory
}

func (EventUpdate) isUpdate()    {}
func (StateUpdate) isUpdate()    {}
func (AdvisoryUpdate) isUpdate() {}
