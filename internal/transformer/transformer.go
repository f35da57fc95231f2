package transformer

import (
	"context"
	"net/http"

	"github.com/hicap-oss/claude-code-router/internal/llm"
)

// Transformer is a named unit of provider adaptation. The stages it takes
// part in are decided by which of RequestInTransformer, AuthTransformer and
// ResponseOutTransformer it implements.
type Transformer interface {
	Name() string
}

// RequestInTransformer reshapes the outbound body and contributes headers.
type RequestInTransformer interface {
	TransformRequestIn(ctx context.Context, body any, provider *llm.Provider, tc *Context) (*Request, error)
}

// AuthTransformer injects credential headers. Auth stages run after every
// request-in stage.
type AuthTransformer interface {
	Auth(ctx context.Context, body any, provider *llm.Provider, tc *Context) (*Request, error)
}

// ResponseOutTransformer normalizes the upstream response.
type ResponseOutTransformer interface {
	TransformResponseOut(ctx context.Context, resp *Response, tc *Context) (*Response, error)
}

// Context is the per-call data shared with every stage. Stages must treat it
// as read-only.
type Context struct {
	RequestID   string
	Provider    string
	Model       string
	InputTokens int
	Metadata    map[string]string
}

// Request is what a request-in or auth stage returns.
type Request struct {
	Body   any
	Config Config
}

// Config holds transport overrides contributed by a stage.
type Config struct {
	Headers HeaderPatch
	// URL replaces the provider base URL when non-empty.
	URL string
}

// Response is the raw upstream response handed to the response-out phase.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Clone returns a deep copy of the response.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}

	body := make([]byte, len(r.Body))
	copy(body, r.Body)

	return &Response{
		StatusCode: r.StatusCode,
		Header:     r.Header.Clone(),
		Body:       body,
	}
}

// Outbound is the frozen request descriptor handed to the dispatcher.
type Outbound struct {
	Body    any
	Headers HeaderSet
	URL     string
}

// Dispatcher performs the upstream HTTP call.
type Dispatcher interface {
	Dispatch(ctx context.Context, out *Outbound) (*Response, error)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, out *Outbound) (*Response, error)

func (f DispatcherFunc) Dispatch(ctx context.Context, out *Outbound) (*Response, error) {
	return f(ctx, out)
}
