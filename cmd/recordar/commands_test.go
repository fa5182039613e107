package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foschi-ia/recordar/internal/config"
	"github.com/foschi-ia/recordar/internal/timeparse"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestAskCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /preguntar": `{"texto":"✅ Listo"}`,
	})

	var out bytes.Buffer
	require.NoError(t, runAsk(ctx, ts.client(), &out, "ana", "recordame algo en 5 minutos"))
	assert.Equal(t, "✅ Listo\n", out.String())

	require.Len(t, ts.requests, 1)
	assert.Equal(t, "Bearer test-token", ts.requests[0].Auth)
	var sent map[string]string
	require.NoError(t, json.Unmarshal([]byte(ts.requests[0].Body), &sent))
	assert.Equal(t, map[string]string{"mensaje": "recordame algo en 5 minutos", "usuario_id": "ana"}, sent)
}

func TestRemindCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /recordatorios/ana": `{"id":"r1","owner":"ana","message":"comprar pan","due_at":"2024-01-01T10:10:00-03:00","status":"pending"}`,
	})

	require.NoError(t, runRemind(ctx, ts.client(), "ana", "comprar pan en 10 minutos"))
	require.Len(t, ts.requests, 1)
	assert.Equal(t, http.MethodPost, ts.requests[0].Method)
	assert.JSONEq(t, `{"texto":"comprar pan en 10 minutos"}`, ts.requests[0].Body)
}

func TestRemindCommand_ServerError(t *testing.T) {
	ts := newTestServer(t, nil)
	err := runRemind(ctx, ts.client(), "ana", "comprar pan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "not found")
}

func TestListCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /recordatorios/ana": `[
			{"id":"r1","message":"comprar pan","due_at":"2024-01-01T10:10:00Z"},
			{"id":"r2","message":"pagar la luz","due_at":"2024-03-05T10:00:00Z"}
		]`,
	})

	var out bytes.Buffer
	require.NoError(t, runList(ctx, ts.client(), &out, "ana"))
	assert.Equal(t, "- comprar pan → 01/01/2024 10:10\n- pagar la luz → 05/03/2024 10:00\n", out.String())
}

func TestListCommand_Empty(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GET /recordatorios/ana": `[]`})
	var out bytes.Buffer
	require.NoError(t, runList(ctx, ts.client(), &out, "ana"))
	assert.Contains(t, out.String(), "No tenés recordatorios pendientes")
}

func TestOwnerPath_Escapes(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GET /recordatorios/a b/c": `[]`})
	var out bytes.Buffer
	require.NoError(t, runList(ctx, ts.client(), &out, "a b/c"))
	assert.Equal(t, "/recordatorios/a%20b%2Fc", ts.requests[0].Path)
}

func TestClearCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{"DELETE /recordatorios/ana": `{"deleted":3}`})
	n, err := runClear(ctx, ts.client(), "ana")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPollCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /notificaciones/ana": `[{"id":"r1","mensaje":"comprar pan","due_at":"2024-01-01T10:10:00Z","fired_at":"2024-01-01T10:10:05Z"}]`,
	})
	ns, err := runPoll(ctx, ts.client(), "ana")
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, "comprar pan", ns[0].Message)
}

func TestHistoryCommand(t *testing.T) {
	noColor = true
	t.Cleanup(func() { noColor = false })

	ts := newTestServer(t, map[string]string{
		"GET /historial/ana": `[{"usuario":"hola","foschi":"Recibí: hola","fecha":"lunes, 1 de enero de 2024, 10:00"}]`,
	})
	var out bytes.Buffer
	require.NoError(t, runHistory(ctx, ts.client(), &out, "ana", 5))
	assert.Equal(t, "/historial/ana?limit=5", ts.requests[0].Path)
	assert.Contains(t, out.String(), "lunes, 1 de enero de 2024, 10:00")
	assert.Contains(t, out.String(), "vos: hola")
	assert.Contains(t, out.String(), "foschi: Recibí: hola")
}

func TestParseCommand(t *testing.T) {
	now := time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	require.NoError(t, runParse(&out, "recordame comprar pan en 10 minutos", now))
	s := out.String()
	assert.Contains(t, s, "comando:  create")
	assert.Contains(t, s, "mensaje:  comprar pan")
	assert.Contains(t, s, "cuándo:   01/01/2024 10:10")
	assert.Contains(t, s, "en:       10m0s")
}

func TestParseCommand_Unrecognized(t *testing.T) {
	var out bytes.Buffer
	err := runParse(&out, "comprar pan", time.Now())
	assert.ErrorIs(t, err, timeparse.ErrUnrecognized)
	assert.Empty(t, out.String())
}

func TestNoColorFlag(t *testing.T) {
	noColor = true
	assert.Equal(t, "hello", colorize(colorRed, "hello"))
	noColor = false
	assert.Equal(t, colorRed+"hello"+colorReset, colorize(colorRed, "hello"))
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":{"message":"no entendí cuándo","type":"parse_error"}}`))
	}))
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	var v any
	err = decodeJSON(resp, &v)
	require.Error(t, err)
	assert.Equal(t, "server returned 422: no entendí cuándo", err.Error())
}

func TestConfigShowAll_MasksSecrets(t *testing.T) {
	cfg := config.Config{}
	cfg.Proxy.OpenRouterAPIKey = "sk-secret"
	for _, k := range config.ShowAll(cfg) {
		assert.NotContains(t, k.Value, "sk-secret", k.Key)
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("warn", &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	assert.True(t, newLogger("bogus", &buf).Enabled(ctx, slog.LevelInfo))
	assert.False(t, newLogger("bogus", &buf).Enabled(ctx, slog.LevelDebug))
}

func TestPIDFile_RoundTrip(t *testing.T) {
	path := pidFilePath(t.TempDir())
	require.NoError(t, writePIDFile(path))
	pid, err := readPIDFile(path)
	require.NoError(t, err)
	assert.Positive(t, pid)
	assert.True(t, strings.HasSuffix(path, "recordar.pid"))
}
