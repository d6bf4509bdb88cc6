package runstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"devhub/internal/httpclient"
	"devhub/internal/logging"
)

// dataPrefix marks the wire lines that carry a step record. Anything else
// (heartbeat comments, blank keep-alive lines) is ignored.
const dataPrefix = "data: "

// readBufferSize is the chunk size for reading the response body.
const readBufferSize = 4096

// errorBodyLimit caps how much of a non-2xx response body is quoted in the
// synthetic error step.
const errorBodyLimit = 4096

// RunRequest identifies the task a run executes against.
type RunRequest struct {
	TaskID       string `json:"task_id"`
	ProjectID    string `json:"project_id"`
	Instructions string `json:"instructions,omitempty"`
}

// Client starts runs against a streaming endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     logging.Logger
	metrics    *Metrics
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the transport. The supplied client must not carry
// an overall timeout, or long-lived streams will be cut off mid-run.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(logger logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logging.OrNop(logger)
	}
}

// WithMetrics overrides the metrics sink, for tests with a private registry.
func WithMetrics(metrics *Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// NewClient builds a run stream client for the given endpoint URL.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		logger:   logging.NewComponentLogger("RunStream"),
		metrics:  defaultMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = httpclient.NewStreaming(c.logger)
	}
	return c
}

// RunOption customizes a single run handle.
type RunOption func(*Run)

// WithOnStep registers a hook invoked after every step append, in log order.
// The hook runs on the consumer goroutine; it should hand off heavy work
// rather than block the stream.
func WithOnStep(hook func(Step)) RunOption {
	return func(r *Run) {
		r.onStep = hook
	}
}

// WithOnSettled registers a hook fired exactly once when the run reaches a
// terminal state. It is never fired for a canceled run.
func WithOnSettled(hook func(*Run)) RunOption {
	return func(r *Run) {
		r.onSettled = hook
	}
}

// Run is the live handle for one streamed run. Each run owns its own
// transport, buffer, and step log; handles are independent and safe for
// concurrent use.
type Run struct {
	mu        sync.Mutex
	steps     []Step
	running   bool
	settled   bool
	succeeded bool
	canceled  bool
	expanded  map[string]struct{}

	cancel context.CancelFunc
	done   chan struct{}

	onStep    func(Step)
	onSettled func(*Run)

	logger  logging.Logger
	metrics *Metrics
}

// StartRun issues the streaming request and returns a live handle
// immediately. Transport failures surface on the handle as a synthetic
// error step rather than as a returned error.
func (c *Client) StartRun(ctx context.Context, req RunRequest, opts ...RunOption) *Run {
	runCtx, cancel := context.WithCancel(ctx)

	run := &Run{
		running:  true,
		expanded: make(map[string]struct{}),
		cancel:   cancel,
		done:     make(chan struct{}),
		logger:   c.logger,
		metrics:  c.metrics,
	}
	for _, opt := range opts {
		opt(run)
	}

	c.metrics.observeRunStarted()
	c.logger.Info("starting run: task=%s project=%s", req.TaskID, req.ProjectID)

	go run.consume(runCtx, c.httpClient, c.endpoint, req)
	return run
}

// consume drives the whole stream: one goroutine, chunks strictly in arrival
// order, the step log as the only shared state.
func (r *Run) consume(ctx context.Context, httpClient *http.Client, endpoint string, req RunRequest) {
	body, err := json.Marshal(req)
	if err != nil {
		r.fail(fmt.Errorf("encode run request: %w", err))
		return
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		r.fail(fmt.Errorf("build run request: %w", err))
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			r.finishCanceled()
			return
		}
		r.fail(fmt.Errorf("run request failed: %w", err))
		return
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			r.logger.Debug("closing run stream body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := httpclient.ReadBodySnippet(resp.Body, errorBodyLimit)
		r.fail(fmt.Errorf("run request returned %s: %s", resp.Status, detail))
		return
	}

	scanner := &LineScanner{}
	buf := make([]byte, readBufferSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, line := range scanner.Write(buf[:n]) {
				if r.handleLine(line) {
					r.settle()
					return
				}
			}
		}
		if readErr != nil {
			if ctx.Err() != nil {
				r.finishCanceled()
				return
			}
			if readErr == io.EOF {
				// Stream ended without a terminal step: the run is
				// nonetheless over.
				r.settle()
				return
			}
			r.fail(fmt.Errorf("run stream read failed: %w", readErr))
			return
		}
	}
}

// handleLine processes one complete line and reports whether it carried a
// terminal step. Malformed records are dropped without aborting the run.
func (r *Run) handleLine(line string) bool {
	if !strings.HasPrefix(line, dataPrefix) {
		return false
	}

	step, err := UnmarshalStep([]byte(line[len(dataPrefix):]))
	if err != nil {
		r.metrics.observeMalformedLine()
		r.logger.Debug("dropping malformed step record: %v", err)
		return false
	}

	r.append(step)
	return IsTerminal(step.Kind())
}

func (r *Run) append(step Step) {
	r.mu.Lock()
	r.steps = append(r.steps, step)
	if step.Kind() == KindComplete {
		r.succeeded = true
	}
	hook := r.onStep
	r.mu.Unlock()

	r.metrics.observeStep(step.Kind())
	if hook != nil {
		hook(step)
	}
}

// fail appends a synthetic error step with a best-effort message and settles
// the run.
func (r *Run) fail(err error) {
	r.mu.Lock()
	alreadySettled := r.settled
	r.mu.Unlock()
	if alreadySettled {
		return
	}

	r.logger.Warn("run failed: %v", err)
	r.append(&ErrorStep{Content: err.Error()})
	r.settleWithOutcome("error")
}

func (r *Run) settle() {
	r.settleWithOutcome("stream_end")
}

func (r *Run) settleWithOutcome(outcome string) {
	r.mu.Lock()
	if r.settled {
		r.mu.Unlock()
		return
	}
	r.settled = true
	r.running = false
	if r.succeeded && outcome == "stream_end" {
		outcome = "success"
	}
	hook := r.onSettled
	r.mu.Unlock()

	close(r.done)
	r.metrics.observeRunSettled(outcome)
	if hook != nil {
		hook(r)
	}
}

// finishCanceled closes out a canceled run: the handle stops running and
// unblocks waiters, but no synthetic step is appended and the settled hook
// never fires. Cancellation is silent, not an error.
func (r *Run) finishCanceled() {
	r.mu.Lock()
	if r.settled {
		r.mu.Unlock()
		return
	}
	r.settled = true
	r.running = false
	r.canceled = true
	r.mu.Unlock()

	close(r.done)
	r.metrics.observeRunSettled("canceled")
	r.logger.Info("run canceled")
}

// Cancel aborts the transport. It is safe to call at any time, including
// concurrently and after settlement, where it is a no-op.
func (r *Run) Cancel() {
	r.mu.Lock()
	settled := r.settled
	r.mu.Unlock()
	if settled {
		return
	}
	r.cancel()
}

// Steps returns a snapshot of the append-only step log, in arrival order.
func (r *Run) Steps() []Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Step, len(r.steps))
	copy(out, r.steps)
	return out
}

// IsRunning reports whether the run is still actively streaming.
func (r *Run) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Succeeded reports whether the run settled with an explicit complete step.
func (r *Run) Succeeded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.succeeded
}

// Canceled reports whether the run ended by cancellation.
func (r *Run) Canceled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canceled
}

// Wait blocks until the run reaches a terminal state (including
// cancellation) or the caller's context is done.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FileWrites projects the file changes proposed so far, in log order. The
// projection is recomputed from the log each call rather than tracked
// separately, so it can never drift from it.
func (r *Run) FileWrites() []*FileWrite {
	r.mu.Lock()
	defer r.mu.Unlock()

	var writes []*FileWrite
	for _, step := range r.steps {
		if write, ok := step.(*FileWrite); ok {
			writes = append(writes, write)
		}
	}
	return writes
}

// PRCreated returns the first pull-request step in the log, if any.
func (r *Run) PRCreated() (*PRCreated, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, step := range r.steps {
		if pr, ok := step.(*PRCreated); ok {
			return pr, true
		}
	}
	return nil, false
}

// Expand marks a file-write step's diff as shown.
func (r *Run) Expand(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expanded[path] = struct{}{}
}

// Collapse hides a previously expanded diff.
func (r *Run) Collapse(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.expanded, path)
}

// IsExpanded reports whether a path's diff is shown.
func (r *Run) IsExpanded(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.expanded[path]
	return ok
}
