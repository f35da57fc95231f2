package transformer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hicap-oss/claude-code-router/internal/llm"
)

// Order selects the sequence of the response-out phase.
type Order string

const (
	OrderReverse Order = "reverse"
	OrderForward Order = "forward"
)

// Chain is the transformer configuration of one provider. It is built once
// and shared read-only between concurrent calls.
type Chain struct {
	// Stages run request-in in this order and take part in response-out.
	Stages []Transformer
	// Auth stages run after every request-in stage.
	Auth []Transformer
	// ResponseOrder defaults to OrderReverse.
	ResponseOrder Order
}

// Names lists the transformers of the chain, auth stages last.
func (c Chain) Names() []string {
	names := make([]string, 0, len(c.Stages)+len(c.Auth))
	for _, t := range c.Stages {
		names = append(names, t.Name())
	}
	for _, t := range c.Auth {
		names = append(names, t.Name())
	}
	return names
}

func (c Chain) responseStages() []Transformer {
	stages := make([]Transformer, 0, len(c.Stages)+len(c.Auth))
	stages = append(stages, c.Stages...)
	stages = append(stages, c.Auth...)

	if c.ResponseOrder == OrderForward {
		return stages
	}

	for i, j := 0, len(stages)-1; i < j; i, j = i+1, j-1 {
		stages[i], stages[j] = stages[j], stages[i]
	}
	return stages
}

type PipelineOption func(*Pipeline)

// WithTimeout bounds a whole Execute call. Zero disables the bound.
func WithTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.timeout = d
	}
}

// Pipeline runs chains. It holds no per-call state and is safe for concurrent use.
type Pipeline struct {
	logger  *slog.Logger
	timeout time.Duration
}

func NewPipeline(logger *slog.Logger, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{logger: logger}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Execute builds the outbound request, dispatches it and normalizes the
// response. Errors returned by d are passed through unchanged.
func (p *Pipeline) Execute(ctx context.Context, chain Chain, req *llm.UnifiedChatRequest, provider *llm.Provider, tc *Context, d Dispatcher) (*Response, error) {
	if tc == nil {
		tc = &Context{}
	}
	if d == nil {
		return nil, errors.New("nil dispatcher")
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	out, err := p.BuildRequest(ctx, chain, req, provider, tc)
	if err != nil {
		return nil, err
	}

	if err := ctxError(ctx, PhaseDispatch, ""); err != nil {
		return nil, err
	}

	p.logger.Debug("Dispatching request",
		"request_id", tc.RequestID,
		"provider", provider.Name,
		"url", out.URL,
		"headers", out.Headers.Keys(),
	)

	resp, err := d.Dispatch(ctx, out)
	if err != nil {
		return nil, err
	}

	return p.TransformResponse(ctx, chain, resp, tc)
}

// BuildRequest runs the request-in and auth phases and returns the frozen
// outbound descriptor. Nothing is returned if any stage fails.
func (p *Pipeline) BuildRequest(ctx context.Context, chain Chain, req *llm.UnifiedChatRequest, provider *llm.Provider, tc *Context) (*Outbound, error) {
	if req == nil {
		return nil, errors.New("nil chat request")
	}
	if provider == nil {
		return nil, errors.New("nil provider")
	}
	if tc == nil {
		tc = &Context{}
	}

	var (
		body    any = req
		headers HeaderSet
		url     = provider.BaseURL
	)

	apply := func(phase Phase, t Transformer, call func() (*Request, error)) error {
		result, err := runStage(ctx, phase, t.Name(), call)
		if err != nil {
			return err
		}
		if result == nil {
			return &StageError{Phase: phase, Transformer: t.Name(), Err: errors.New("stage returned no request")}
		}

		body = result.Body
		headers.Merge(result.Config.Headers)
		if result.Config.URL != "" {
			url = result.Config.URL
		}

		p.logger.Debug("Applied transformer",
			"request_id", tc.RequestID,
			"phase", phase,
			"transformer", t.Name(),
			"headers", headers.Keys(),
		)
		return nil
	}

	for _, t := range chain.Stages {
		in, ok := t.(RequestInTransformer)
		if !ok {
			continue
		}

		current := body
		if err := apply(PhaseRequestIn, t, func() (*Request, error) {
			return in.TransformRequestIn(ctx, current, provider, tc)
		}); err != nil {
			return nil, err
		}
	}

	for _, t := range chain.Auth {
		auth, ok := t.(AuthTransformer)
		if !ok {
			continue
		}

		current := body
		if err := apply(PhaseAuth, t, func() (*Request, error) {
			return auth.Auth(ctx, current, provider, tc)
		}); err != nil {
			return nil, err
		}
	}

	return &Outbound{
		Body:    body,
		Headers: headers.Clone(),
		URL:     url,
	}, nil
}

// TransformResponse feeds resp through every response-out stage of the chain.
func (p *Pipeline) TransformResponse(ctx context.Context, chain Chain, resp *Response, tc *Context) (*Response, error) {
	if tc == nil {
		tc = &Context{}
	}

	current := resp
	for _, t := range chain.responseStages() {
		out, ok := t.(ResponseOutTransformer)
		if !ok {
			continue
		}

		in := current
		next, err := runStage(ctx, PhaseResponseOut, t.Name(), func() (*Response, error) {
			return out.TransformResponseOut(ctx, in, tc)
		})
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, &StageError{Phase: PhaseResponseOut, Transformer: t.Name(), Err: errors.New("stage returned no response")}
		}

		current = next
	}

	return current, nil
}

type stageResult[T any] struct {
	value T
	err   error
}

// runStage calls fn and waits for it or for ctx. When ctx ends first the stage
// is abandoned and its result dropped.
func runStage[T any](ctx context.Context, phase Phase, name string, fn func() (T, error)) (T, error) {
	var zero T

	if err := ctxError(ctx, phase, name); err != nil {
		return zero, err
	}

	done := make(chan stageResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- stageResult[T]{err: fmt.Errorf("panic: %v", r)}
			}
		}()

		v, err := fn()
		done <- stageResult[T]{value: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return zero, &StageError{Phase: phase, Transformer: name, Err: r.err}
		}
		return r.value, nil
	case <-ctx.Done():
		return zero, ctxError(ctx, phase, name)
	}
}

func ctxError(ctx context.Context, phase Phase, name string) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Phase: phase, Transformer: name, Err: err}
	}

	return &StageError{Phase: phase, Transformer: name, Err: err}
}
