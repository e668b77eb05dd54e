// Package chat keeps the follow-up question thread of one research job.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"research-cli/internal/api"
)

// FallbackReply replaces an answer whose stream failed.
const FallbackReply = "Sorry, I couldn't answer that right now. Please try again."

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is one entry of the thread. An assistant message grows while
// Streaming is set and is never changed after that.
type Message struct {
	ID        string
	Content   string
	Sender    Sender
	Timestamp time.Time
	Streaming bool
	Failed    bool
	Cancelled bool
}

// Streamer streams the answer to a question. *api.Client satisfies it.
type Streamer interface {
	StreamChat(ctx context.Context, req api.ChatRequest, onChunk api.ChunkCallback) error
}

var (
	ErrBusy         = errors.New("an answer is already streaming")
	ErrEmptyMessage = errors.New("question is empty")
)

// Session is the message list of one job. It is safe for concurrent use: the
// streaming goroutine appends while the UI reads.
type Session struct {
	jobID string

	mu       sync.Mutex
	messages []Message
	active   string
	cancel   context.CancelFunc
	now      func() time.Time
}

func NewSession(jobID string) *Session {
	return &Session{jobID: jobID, now: time.Now}
}

func (s *Session) JobID() string { return s.jobID }

// Begin records a question and its empty answer placeholder.
func (s *Session) Begin(question string) (Message, Message, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Message{}, Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != "" {
		return Message{}, Message{}, ErrBusy
	}

	ts := s.now()
	user := Message{ID: uuid.NewString(), Content: question, Sender: SenderUser, Timestamp: ts}
	reply := Message{ID: uuid.NewString(), Sender: SenderAssistant, Timestamp: ts, Streaming: true}
	s.messages = append(s.messages, user, reply)
	s.active = reply.ID
	return user, reply, nil
}

// Append adds chunk to a streaming answer. It returns false when the message
// is no longer streaming, so late chunks are dropped.
func (s *Session) Append(id, chunk string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.find(id)
	if m == nil || !m.Streaming {
		return false
	}
	m.Content += chunk
	return true
}

// Fail replaces a streaming answer with FallbackReply.
func (s *Session) Fail(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.find(id)
	if m == nil || !m.Streaming {
		return
	}
	m.Content = FallbackReply
	m.Failed = true
	s.end(m)
}

// Finish marks an answer complete.
func (s *Session) Finish(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.find(id); m != nil && m.Streaming {
		s.end(m)
	}
}

// Cancel stops the streaming answer, if any. Content received so far is
// kept; nothing is appended once Cancel returns.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.find(s.active)
	if m == nil {
		return false
	}
	m.Cancelled = true
	s.end(m)
	return true
}

// Close cancels any stream and forgets the thread.
func (s *Session) Close() {
	s.Cancel()
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
}

// Messages returns a copy of the thread in order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Streaming reports whether an answer is in progress.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != ""
}

// Ask runs one exchange: it records the question, streams the answer into the
// placeholder and calls onUpdate after every chunk. It blocks until the
// stream ends. A failed request leaves FallbackReply in the answer and
// returns the error; a cancelled one returns context.Canceled.
func (s *Session) Ask(ctx context.Context, st Streamer, question string, onUpdate func(Message)) (Message, error) {
	_, reply, err := s.Begin(question)
	if err != nil {
		return Message{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	req := api.ChatRequest{Question: strings.TrimSpace(question), JobID: s.jobID}
	err = st.StreamChat(ctx, req, func(chunk string) {
		if !s.Append(reply.ID, chunk) {
			cancel()
			return
		}
		if onUpdate != nil {
			onUpdate(s.message(reply.ID))
		}
	})

	switch {
	case s.message(reply.ID).Cancelled || errors.Is(err, context.Canceled):
		s.Cancel()
		err = context.Canceled
	case err == nil:
		s.Finish(reply.ID)
	default:
		s.Fail(reply.ID)
		err = fmt.Errorf("streaming answer: %w", err)
	}

	final := s.message(reply.ID)
	if onUpdate != nil {
		onUpdate(final)
	}
	return final, err
}

func (s *Session) message(id string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.find(id); m != nil {
		return *m
	}
	return Message{}
}

func (s *Session) find(id string) *Message {
	if id == "" {
		return nil
	}
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return &s.messages[i]
		}
	}
	return nil
}

func (s *Session) end(m *Message) {
	m.Streaming = false
	if s.active == m.ID {
		s.active = ""
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
	}
}
