package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

// GenericRequestError is shown when the server gives no usable error text.
const GenericRequestError = "request failed"

// RequestError is returned when a request gets a non-2xx response, or a
// stream response without a body.
type RequestError struct {
	StatusCode int
	Body       string
}

func newRequestError(status int, body []byte) *RequestError {
	return &RequestError{StatusCode: status, Body: string(body)}
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return e.Message()
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message())
}

// Message returns the server's error text: the "detail" field of a JSON
// error body, the raw body, or GenericRequestError.
func (e *RequestError) Message() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return GenericRequestError
	}
	var fastapi struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal([]byte(body), &fastapi); err == nil && len(fastapi.Detail) > 0 {
		var s string
		if err := json.Unmarshal(fastapi.Detail, &s); err == nil && s != "" {
			return s
		}
		return string(fastapi.Detail)
	}
	return body
}

// ErrorMessage returns the text to show for a failed request: the server's
// message when err wraps a *RequestError, otherwise GenericRequestError.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var re *RequestError
	if errors.As(err, &re) {
		return re.Message()
	}
	return GenericRequestError
}

// ChatRequest is the body of a streamed question.
type ChatRequest struct {
	Question string `json:"question"`
	JobID    string `json:"job_id,omitempty"`
}

// ChunkCallback receives each fragment of a streamed answer in arrival order.
type ChunkCallback func(chunk string)

const streamReadSize = 4096

// StreamChat posts a question and calls onChunk for every fragment of the
// plain-text answer. Fragment boundaries carry no meaning; a UTF-8 sequence
// split across reads is held back until it is complete. Cancelling ctx
// aborts the transfer, and onChunk is not called once ctx is done. The
// request is attempted exactly once.
func (c *Client) StreamChat(ctx context.Context, r ChatRequest, onChunk ChunkCallback) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/qa/stream", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/plain")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(resp.Body)
		return newRequestError(resp.StatusCode, errBody)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return &RequestError{StatusCode: resp.StatusCode}
	}

	return readChunks(ctx, resp.Body, onChunk)
}

// readChunks delivers body fragments to onChunk until EOF or cancellation.
func readChunks(ctx context.Context, body io.Reader, onChunk ChunkCallback) error {
	buf := make([]byte, streamReadSize)
	var pending []byte

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			cut := completeUTF8(pending)
			if cut > 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
				onChunk(string(pending[:cut]))
				pending = append(pending[:0], pending[cut:]...)
			}
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(readErr, io.EOF) {
				return fmt.Errorf("reading stream: %w", readErr)
			}
			if len(pending) > 0 && ctx.Err() == nil {
				onChunk(string(pending))
			}
			return nil
		}
	}
}

// completeUTF8 returns the length of the longest prefix of p that does not
// end inside a multi-byte sequence.
func completeUTF8(p []byte) int {
	// A rune is at most 4 bytes, so only the tail needs checking.
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(p[i]) {
			continue
		}
		if utf8.FullRune(p[i:]) {
			return len(p)
		}
		return i
	}
	return len(p)
}
