package runstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devhub/internal/logging"
)

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	return NewClient(endpoint,
		WithLogger(logging.Nop()),
		WithMetrics(MustNewMetrics(prometheus.NewRegistry())),
	)
}

// streamServer replays body as the response to any POST, in chunks of
// chunkSize bytes with a flush after each.
func streamServer(t *testing.T, body string, chunkSize int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)

		for i := 0; i < len(body); i += chunkSize {
			end := i + chunkSize
			if end > len(body) {
				end = len(body)
			}
			if _, err := w.Write([]byte(body[i:end])); err != nil {
				return
			}
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

const exampleBody = "data: {\"type\":\"thinking\",\"content\":\"checking\"}\n" +
	"data: {\"type\":\"file_write\",\"path\":\"a.ts\",\"content\":\"x\",\"fileContent\":\"y\"}\n" +
	"data: {\"type\":\"complete\"}\n"

func TestStartRun_EndToEnd(t *testing.T) {
	srv := streamServer(t, exampleBody, len(exampleBody))
	client := newTestClient(t, srv.URL)

	var settledCount int32
	run := client.StartRun(context.Background(), RunRequest{TaskID: "t1", ProjectID: "p1"},
		WithOnSettled(func(*Run) { atomic.AddInt32(&settledCount, 1) }),
	)
	require.NoError(t, run.Wait(context.Background()))

	steps := run.Steps()
	require.Len(t, steps, 3)
	assert.Equal(t, KindThinking, steps[0].Kind())
	assert.Equal(t, KindFileWrite, steps[1].Kind())
	assert.Equal(t, KindComplete, steps[2].Kind())

	assert.False(t, run.IsRunning())
	assert.True(t, run.Succeeded())
	assert.Equal(t, int32(1), atomic.LoadInt32(&settledCount))

	writes := run.FileWrites()
	require.Len(t, writes, 1)
	assert.Equal(t, "a.ts", writes[0].Path)
	assert.Equal(t, "x", writes[0].OriginalContent)
	assert.Equal(t, "y", writes[0].NewContent)
}

func TestStartRun_ChunkingDoesNotChangeTheLog(t *testing.T) {
	collect := func(chunkSize int) []Step {
		srv := streamServer(t, exampleBody, chunkSize)
		client := newTestClient(t, srv.URL)
		run := client.StartRun(context.Background(), RunRequest{TaskID: "t1", ProjectID: "p1"})
		require.NoError(t, run.Wait(context.Background()))
		return run.Steps()
	}

	oneByte := collect(1)
	whole := collect(len(exampleBody))
	assert.Equal(t, whole, oneByte)
}

func TestStartRun_MalformedRecordIsDroppedSilently(t *testing.T) {
	body := "data: {not json\n" +
		"data: {\"type\":\"thinking\",\"content\":\"still here\"}\n" +
		"data: {\"type\":\"done\"}\n"
	srv := streamServer(t, body, len(body))
	client := newTestClient(t, srv.URL)

	run := client.StartRun(context.Background(), RunRequest{TaskID: "t1", ProjectID: "p1"})
	require.NoError(t, run.Wait(context.Background()))

	steps := run.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, KindThinking, steps[0].Kind())
	assert.Equal(t, KindDone, steps[1].Kind())
	assert.False(t, run.Succeeded())
}

func TestStartRun_NonDataLinesAreIgnored(t *testing.T) {
	body := ": heartbeat\n" +
		"\n" +
		"event: connected\n" +
		"data: {\"type\":\"done\"}\n"
	srv := streamServer(t, body, len(body))
	client := newTestClient(t, srv.URL)

	run := client.StartRun(context.Background(), RunRequest{TaskID: "t1", ProjectID: "p1"})
	require.NoError(t, run.Wait(context.Background()))
	require.Len(t, run.Steps(), 1)
}

func TestStartRun_StreamEndWithoutTerminalStep(t *testing.T) {
	body := "data: {\"type\":\"thinking\",\"content\":\"partial\"}\n"
	srv := streamServer(t, body, len(body))
	client := newTestClient(t, srv.URL)

	var settled int32
	run := client.StartRun(context.Background(), RunRequest{TaskID: "t1", ProjectID: "p1"},
		WithOnSettled(func(*Run) { atomic.AddInt32(&settled, 1) }),
	)
	require.NoError(t, run.Wait(context.Background()))

	assert.False(t, run.IsRunning())
	assert.False(t, run.Succeeded())
	assert.Equal(t, int32(1), atomic.LoadInt32(&settled))
	require.Len(t, run.Steps(), 1)
}

func TestStartRun_ErrorStepDoesNotTerminateTheRun(t *testing.T) {
	body := "data: {\"type\":\"error\",\"content\":\"tool failed\"}\n" +
		"data: {\"type\":\"thinking\",\"content\":\"recovering\"}\n" +
		"data: {\"type\":\"complete\"}\n"
	srv := streamServer(t, body, len(body))
	client := newTestClient(t, srv.URL)

	run := client.StartRun(context.Background(), RunRequest{TaskID: "t1", ProjectID: "p1"})
	require.NoError(t, run.Wait(context.Background()))

	steps := run.Steps()
	require.Len(t, steps, 3)
	assert.Equal(t, KindError, steps[0].Kind())
	assert.True(t, run.Succeeded())
}

func TestStartRun_TransportFailureYieldsSyntheticErrorStep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on
	client := newTestClient(t, srv.URL)

	var settled int32
	run := client.StartRun(context.Background(), RunRequest{TaskID: "t1", ProjectID: "p1"},
		WithOnSettled(func(*Run) { atomic.AddInt32(&settled, 1) }),
	)
	require.NoError(t, run.Wait(context.Background()))

	steps := run.Steps()
	require.Len(t, steps, 1)
	errStep, ok := steps[0].(*ErrorStep)
	require.True(t, ok)
	assert.NotEmpty(t, errStep.Content)
	assert.False(t, run.IsRunning())
	assert.Equal(t, int32(1), atomic.LoadInt32(&settled))
}

func TestStartRun_NonSuccessStatusYieldsSyntheticErrorStep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "task not found", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	client := newTestClient(t, srv.URL)

	run := client.StartRun(context.Background(), RunRequest{TaskID: "missing", ProjectID: "p1"})
	require.NoError(t, run.Wait(context.Background()))

	steps := run.Steps()
	require.Len(t, steps, 1)
	errStep, ok := steps[0].(*ErrorStep)
	require.True(t, ok)
	assert.Contains(t, errStep.Content, "404")
	assert.Contains(t, errStep.Content, "task not found")
}

func TestStartRun_CancelImmediatelyIsSilent(t *testing.T) {
	requestSeen := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(requestSeen)
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	client := newTestClient(t, srv.URL)

	var settled int32
	run := client.StartRun(context.Background(), RunRequest{TaskID: "t1", ProjectID: "p1"},
		WithOnSettled(func(*Run) { atomic.AddInt32(&settled, 1) }),
	)
	run.Cancel()

	require.NoError(t, run.Wait(context.Background()))
	assert.True(t, run.Canceled())
	assert.False(t, run.IsRunning())

	// No synthetic step and no settled callback for a canceled run.
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, run.Steps())
	assert.Equal(t, int32(0), atomic.LoadInt32(&settled))

	select {
	case <-requestSeen:
		// The transport abort reached the server (or the request never
		// left the client, which is an abort all the same).
	default:
	}
}

func TestStartRun_CancelAbortsEstablishedTransport(t *testing.T) {
	requestSeen := make(chan struct{})
	requestAborted := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		close(requestSeen)
		<-r.Context().Done()
		close(requestAborted)
	}))
	t.Cleanup(srv.Close)
	client := newTestClient(t, srv.URL)

	run := client.StartRun(context.Background(), RunRequest{TaskID: "t1", ProjectID: "p1"})
	<-requestSeen
	run.Cancel()

	select {
	case <-requestAborted:
	case <-time.After(5 * time.Second):
		t.Fatal("server never observed the transport abort")
	}

	require.NoError(t, run.Wait(context.Background()))
	assert.True(t, run.Canceled())
	assert.Empty(t, run.Steps())
}

func TestStartRun_CancelAfterSettlementIsNoOp(t *testing.T) {
	body := "data: {\"type\":\"done\"}\n"
	srv := streamServer(t, body, len(body))
	client := newTestClient(t, srv.URL)

	run := client.StartRun(context.Background(), RunRequest{TaskID: "t1", ProjectID: "p1"})
	require.NoError(t, run.Wait(context.Background()))

	run.Cancel()
	run.Cancel()
	assert.False(t, run.Canceled())
	assert.Len(t, run.Steps(), 1)
}

func TestStartRun_SendsRunRequestBody(t *testing.T) {
	var got RunRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte("data: {\"type\":\"done\"}\n"))
	}))
	t.Cleanup(srv.Close)
	client := newTestClient(t, srv.URL)

	run := client.StartRun(context.Background(), RunRequest{
		TaskID:       "task-9",
		ProjectID:    "proj-3",
		Instructions: "focus on the parser",
	})
	require.NoError(t, run.Wait(context.Background()))

	assert.Equal(t, "task-9", got.TaskID)
	assert.Equal(t, "proj-3", got.ProjectID)
	assert.Equal(t, "focus on the parser", got.Instructions)
}

func TestStartRun_OnStepFiresInLogOrder(t *testing.T) {
	srv := streamServer(t, exampleBody, 7)
	client := newTestClient(t, srv.URL)

	var kinds []StepKind
	run := client.StartRun(context.Background(), RunRequest{TaskID: "t1", ProjectID: "p1"},
		WithOnStep(func(step Step) { kinds = append(kinds, step.Kind()) }),
	)
	require.NoError(t, run.Wait(context.Background()))

	assert.Equal(t, []StepKind{KindThinking, KindFileWrite, KindComplete}, kinds)
}

func TestStartRun_PRCreatedProjectionReturnsFirst(t *testing.T) {
	body := "data: {\"type\":\"pr_created\",\"prUrl\":\"https://example.com/pr/1\",\"prNumber\":1,\"branchName\":\"one\"}\n" +
		"data: {\"type\":\"pr_created\",\"prUrl\":\"https://example.com/pr/2\",\"prNumber\":2,\"branchName\":\"two\"}\n" +
		"data: {\"type\":\"done\"}\n"
	srv := streamServer(t, body, len(body))
	client := newTestClient(t, srv.URL)

	run := client.StartRun(context.Background(), RunRequest{TaskID: "t1", ProjectID: "p1"})
	require.NoError(t, run.Wait(context.Background()))

	pr, ok := run.PRCreated()
	require.True(t, ok)
	assert.Equal(t, 1, pr.Number)
}

func TestRun_ExpandTracksPaths(t *testing.T) {
	run := &Run{expanded: make(map[string]struct{})}

	assert.False(t, run.IsExpanded("a.ts"))
	run.Expand("a.ts")
	assert.True(t, run.IsExpanded("a.ts"))
	run.Collapse("a.ts")
	assert.False(t, run.IsExpanded("a.ts"))
}
