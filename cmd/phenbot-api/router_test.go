package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenbot/study-engine/internal/api/rpc"
	"github.com/phenbot/study-engine/internal/app"
	"github.com/phenbot/study-engine/internal/config"
	"github.com/phenbot/study-engine/internal/ingest"
	"github.com/phenbot/study-engine/internal/llm"
	"github.com/phenbot/study-engine/internal/observability"
)

const biologyText = "Cells are the basic unit of life. Every organism is made of cells, and each cell carries DNA and protein."

type stubExtractor struct{}

func (stubExtractor) Extract(ctx context.Context, data []byte) (*ingest.Extraction, error) {
	return &ingest.Extraction{Text: biologyText, Pages: 2}, nil
}

type testEnv struct {
	srv     *httptest.Server
	backend *llm.MockBackend
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	datasetPath := filepath.Join(dir, "qa.json")
	require.NoError(t, os.WriteFile(datasetPath, []byte(`{"math": {"What is 2+2?": "4"}}`), 0o600))

	cfg := config.DefaultConfig()
	cfg.Database.Driver = "memory"
	cfg.Dataset.Path = datasetPath
	cfg.Ingestion.UploadDir = filepath.Join(dir, "users")

	backend := llm.NewMockBackend("Q: What is a cell?\nA: The unit of life.")
	svc, err := app.New(context.Background(), cfg, observability.NopLogger(),
		app.WithBackend(backend), app.WithExtractor(stubExtractor{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	router := NewRouter(observability.NopLogger(), &AppConfig{
		RequestTimeout: 10 * time.Second,
		AllowedOrigins: []string{"*"},
		MaxUploadBytes: 1 << 20,
	}, svc)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, backend: backend}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.send(t, req)
}

func (e *testEnv) send(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()

	status, _ := e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "ada@example.com", "password": "secret", "username": "ada",
	})
	require.Equal(t, http.StatusOK, status)

	status, body := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "secret",
	})
	require.Equal(t, http.StatusOK, status)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func (e *testEnv) upload(t *testing.T, token, path, field string, names ...string) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range names {
		part, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte("%PDF-1.4 test"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return e.send(t, req)
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])

	status, body = env.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	status, body := env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "ada@example.com", "password": "other", "username": "ada",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "User already exists", body["error"])

	status, _ = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.do(t, http.MethodGet, "/api/v1/analytics", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.do(t, http.MethodGet, "/api/v1/analytics", token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodGet, "/api/v1/analytics", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestLogoutAll(t *testing.T) {
	env := newTestEnv(t)
	first := env.login(t)

	_, body := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "secret",
	})
	second, _ := body["token"].(string)
	require.NotEmpty(t, second)

	status, _ := env.do(t, http.MethodPost, "/api/v1/auth/logout?all=true", first, nil)
	assert.Equal(t, http.StatusOK, status)

	for _, token := range []string{first, second} {
		status, _ = env.do(t, http.MethodGet, "/api/v1/analytics", token, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	}
}

func TestAsk(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	status, body := env.do(t, http.MethodPost, "/api/v1/ask", token, map[string]any{
		"question": "What is 2+2?", "subject": "math",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "4", body["answer"])
	assert.Equal(t, "Local Dataset", body["source"])
	assert.EqualValues(t, 90, body["confidence"])
	assert.Zero(t, env.backend.Calls())

	status, body = env.do(t, http.MethodPost, "/api/v1/ask", token, map[string]any{"question": "  "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, body["error"])

	status, body = env.do(t, http.MethodGet, "/api/v1/history", token, nil)
	require.Equal(t, http.StatusOK, status)
	history, _ := body["history"].([]any)
	assert.Len(t, history, 1)

	status, body = env.do(t, http.MethodGet, "/api/v1/analytics", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["questionsAsked"])
}

func TestAsk_NoKnowledgeIsOK(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	env.backend.Err = llm.ErrBackendUnavailable
	env.backend.Answer = ""

	status, body := env.do(t, http.MethodPost, "/api/v1/ask", token, map[string]any{"question": "What is dark matter?"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Service temporarily unavailable. Please try again.", body["error"])
	assert.Equal(t, "Error", body["source"])
	assert.EqualValues(t, 0, body["confidence"])
}

func TestDocumentsAndStudy(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	status, body := env.upload(t, token, "/api/v1/documents", "pdf", "cells.pdf")
	require.Equal(t, http.StatusOK, status, body)
	docID, _ := body["pdfId"].(string)
	require.NotEmpty(t, docID)
	meta, _ := body["metadata"].(map[string]any)
	assert.Equal(t, "biology", meta["subject"])

	status, body = env.upload(t, token, "/api/v1/documents/batch", "pdfs", "a.pdf", "notes.txt")
	require.Equal(t, http.StatusOK, status)
	results, _ := body["results"].([]any)
	require.Len(t, results, 2)
	assert.Equal(t, true, results[0].(map[string]any)["success"])
	assert.Equal(t, false, results[1].(map[string]any)["success"])

	status, body = env.do(t, http.MethodGet, "/api/v1/documents", token, nil)
	require.Equal(t, http.StatusOK, status)
	pdfs, _ := body["pdfs"].([]any)
	assert.Len(t, pdfs, 2)

	status, body = env.do(t, http.MethodPost, "/api/v1/ask", token, map[string]any{"question": "Explain how every organism carries protein"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "AI + PDF Reference", body["source"])
	sources, _ := body["pdfSources"].([]any)
	var names []any
	for _, src := range sources {
		names = append(names, src.(map[string]any)["name"])
	}
	assert.ElementsMatch(t, []any{"cells.pdf", "a.pdf"}, names)

	status, body = env.do(t, http.MethodPost, "/api/v1/documents/"+docID+"/summary", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["summary"])

	status, _ = env.do(t, http.MethodPost, "/api/v1/documents/missing/summary", token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = env.do(t, http.MethodPost, "/api/v1/flashcards/generate", token, map[string]any{"pdfId": docID, "count": 1})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])

	status, _ = env.do(t, http.MethodPost, "/api/v1/flashcards", token, map[string]any{"question": "ATP?", "answer": "Energy."})
	require.Equal(t, http.StatusOK, status)

	status, body = env.do(t, http.MethodGet, "/api/v1/flashcards", token, nil)
	require.Equal(t, http.StatusOK, status)
	deck, _ := body["flashcards"].(map[string]any)
	assert.Len(t, deck["userMade"], 1)
	assert.Len(t, deck["aiGenerated"], 1)
}

func TestPreferencesAndSubjects(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	status, body := env.do(t, http.MethodPost, "/api/v1/preferences", token, map[string]any{"answerLength": "short"})
	require.Equal(t, http.StatusOK, status)
	prefs, _ := body["preferences"].(map[string]any)
	assert.Equal(t, "short", prefs["answerLength"])
	assert.Equal(t, "dark", prefs["theme"])

	status, _ = env.do(t, http.MethodPost, "/api/v1/preferences", token, map[string]any{"answerLength": "epic"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, http.MethodPost, "/api/v1/subjects", token, map[string]string{"subject": "astronomy"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"astronomy"}, body["subjects"])

	status, body = env.do(t, http.MethodDelete, "/api/v1/subjects?subject=astronomy", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["subjects"])
}

func TestTutorRPC(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	client := connect.NewClient[rpc.AskRequest, rpc.AskResponse](env.srv.Client(), env.srv.URL+"/rpc"+rpc.AskProcedure, rpc.WithJSON())

	req := connect.NewRequest(&rpc.AskRequest{Question: "What is 2+2?", Subject: "math"})
	req.Header().Set("Authorization", "Bearer "+token)
	resp, err := client.CallUnary(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "4", resp.Msg.Answer)

	_, err = client.CallUnary(context.Background(), connect.NewRequest(&rpc.AskRequest{Question: "What is 2+2?"}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}
