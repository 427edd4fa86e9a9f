package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docoutline/internal/config"
	"github.com/dgallion1/docoutline/internal/ingest"
	"github.com/dgallion1/docoutline/internal/pipeline"
	"github.com/dgallion1/docoutline/internal/store"
)

const testAPIKey = "secret"

const planMarkdown = `# Overview

Intro paragraph.

## Goals

| Goal | Owner |
|------|-------|
| Ship | Team  |

# Appendix
`

func testConfig() config.Config {
	return config.Config{
		APIKey:          testAPIKey,
		CORSOrigins:     []string{"*"},
		MaxUploadBytes:  1 << 20,
		MaxHeadingDepth: 9,
		ContentFormat:   config.FormatBoth,
		DefaultPageSize: 10,
		MaxPageSize:     100,
		WorkerCount:     2,
		MaxQueueSize:    10,
		JobTTL:          time.Hour,
	}
}

func newTestServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, store.DialectSQLite, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := ingest.New(st, nil, nil, ingest.Options{
		MaxUploadBytes:  cfg.MaxUploadBytes,
		MaxDepth:        cfg.MaxHeadingDepth,
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
	}, log)

	orch := pipeline.NewOrchestrator(cfg, gw, log)
	orch.Start(ctx)
	t.Cleanup(orch.Stop)

	return NewServer(gw, orch, log, cfg)
}

func multipartBody(t *testing.T, field string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, s *Server, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, s *Server, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, "file", map[string]string{name: content})
	return do(t, s, http.MethodPost, "/api/v1/documents", body, ct)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type uploadResp struct {
	Document struct {
		ID string `json:"id"`
	} `json:"document"`
	Created       bool `json:"created"`
	SectionsCount int  `json:"sections_count"`
	Partial       bool `json:"partial"`
}

type errorResp struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, testConfig())

	for _, header := range []string{"", "Basic abc", "Bearer wrong"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}

	rec := do(t, s, http.MethodGet, "/api/v1/documents", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngest_CreatedThenExisting(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := upload(t, s, "plan.md", planMarkdown)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[uploadResp](t, rec)
	assert.True(t, first.Created)
	assert.Equal(t, 3, first.SectionsCount)
	assert.False(t, first.Partial)

	rec = upload(t, s, "copy.md", planMarkdown)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[uploadResp](t, rec)
	assert.False(t, second.Created)
	assert.Equal(t, first.Document.ID, second.Document.ID)
}

func TestIngest_Errors(t *testing.T) {
	cfg := testConfig()
	cfg.MaxUploadBytes = 64
	s := newTestServer(t, cfg)

	rec := upload(t, s, "scan.pdf", "%PDF-1.4")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", decode[errorResp](t, rec).Kind)

	rec = upload(t, s, "big.md", string(bytes.Repeat([]byte("x"), 100)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "too_large", decode[errorResp](t, rec).Kind)

	rec = upload(t, s, "broken.docx", "not a zip")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct := multipartBody(t, "other", map[string]string{"a.md": "# A"})
	rec = do(t, s, http.MethodPost, "/api/v1/documents", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadEndpoints(t *testing.T) {
	s := newTestServer(t, testConfig())
	id := decode[uploadResp](t, upload(t, s, "plan.md", planMarkdown)).Document.ID

	rec := do(t, s, http.MethodGet, "/api/v1/documents?page=1&page_size=5", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[struct {
		Items []struct {
			ID            string `json:"id"`
			SectionsCount int    `json:"sections_count"`
		} `json:"items"`
		Total    int `json:"total"`
		PageSize int `json:"page_size"`
	}](t, rec)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 5, page.PageSize)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 3, page.Items[0].SectionsCount)

	rec = do(t, s, http.MethodGet, "/api/v1/documents?page=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, s, http.MethodGet, "/api/v1/documents?page=9", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/documents/"+id+"/sections", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	tree := decode[struct {
		Sections []struct {
			NumberPath string `json:"number_path"`
			ChildCount int    `json:"child_count"`
			Children   []struct {
				NumberPath string `json:"number_path"`
				TableCount int    `json:"table_count"`
			} `json:"children"`
		} `json:"sections"`
	}](t, rec)
	require.Len(t, tree.Sections, 2)
	assert.Equal(t, 1, tree.Sections[0].ChildCount)
	require.Len(t, tree.Sections[0].Children, 1)
	assert.Equal(t, "1.1", tree.Sections[0].Children[0].NumberPath)
	assert.Equal(t, 1, tree.Sections[0].Children[0].TableCount)

	rec = do(t, s, http.MethodGet, "/api/v1/documents/"+id+"/sections/1.1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	sec := decode[map[string]any](t, rec)
	assert.Equal(t, "Goals", sec["title"])
	assert.Contains(t, sec, "content_html")
	assert.Contains(t, sec, "content_json")

	rec = do(t, s, http.MethodGet, "/api/v1/documents/"+id+"/sections/9", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[errorResp](t, rec).Kind)

	rec = do(t, s, http.MethodGet, "/api/v1/documents/"+id, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[struct {
		ID       string           `json:"id"`
		Sections []map[string]any `json:"sections"`
	}](t, rec)
	assert.Equal(t, id, doc.ID)
	assert.Len(t, doc.Sections, 3)

	rec = do(t, s, http.MethodGet, "/api/v1/documents/missing/sections", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContentFormat(t *testing.T) {
	cfg := testConfig()
	cfg.ContentFormat = config.FormatJSON
	s := newTestServer(t, cfg)
	id := decode[uploadResp](t, upload(t, s, "plan.md", planMarkdown)).Document.ID

	rec := do(t, s, http.MethodGet, "/api/v1/documents/"+id+"/sections/1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	sec := decode[map[string]any](t, rec)
	assert.NotContains(t, sec, "content_html")
	assert.Contains(t, sec, "content_json")
}

func TestDeleteDocument(t *testing.T) {
	s := newTestServer(t, testConfig())
	id := decode[uploadResp](t, upload(t, s, "plan.md", planMarkdown)).Document.ID

	rec := do(t, s, http.MethodDelete, "/api/v1/documents/"+id, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/documents/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, s, http.MethodDelete, "/api/v1/documents/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchIngest(t *testing.T) {
	s := newTestServer(t, testConfig())

	body, ct := multipartBody(t, "files", map[string]string{
		"a.md":    "# A\n\nbody\n",
		"b.md":    "# B\n\n## B1\n",
		"c.pages": "nope",
	})
	rec := do(t, s, http.MethodPost, "/api/v1/documents/batch", body, ct)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	resp := decode[struct {
		Jobs []struct {
			Filename string `json:"filename"`
			JobID    string `json:"job_id"`
			Error    string `json:"error"`
		} `json:"jobs"`
	}](t, rec)
	require.Len(t, resp.Jobs, 3)

	var jobIDs []string
	for _, j := range resp.Jobs {
		if j.Filename == "c.pages" {
			assert.NotEmpty(t, j.Error)
			continue
		}
		require.NotEmpty(t, j.JobID)
		jobIDs = append(jobIDs, j.JobID)
	}
	require.Len(t, jobIDs, 2)

	for _, id := range jobIDs {
		var snap pipeline.JobSnapshot
		require.Eventually(t, func() bool {
			rec := do(t, s, http.MethodGet, "/api/v1/jobs/"+id, nil, "")
			if rec.Code != http.StatusOK {
				return false
			}
			snap = decode[pipeline.JobSnapshot](t, rec)
			return snap.Status.Terminal()
		}, 5*time.Second, 20*time.Millisecond)
		assert.Equal(t, pipeline.StatusCompleted, snap.Status)
		assert.NotEmpty(t, snap.DocID)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/jobs/unknown", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/stats/pipeline", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRPS = 0.001
	cfg.RateLimitBurst = 1
	s := newTestServer(t, cfg)

	assert.Equal(t, http.StatusCreated, upload(t, s, "a.md", "# A\n").Code)
	rec := upload(t, s, "b.md", "# B\n")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decode[errorResp](t, rec).Kind)

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/v1/documents", nil, "").Code)
}

func TestIPRateLimiter_EvictsIdleClients(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(1, 1)
	l.now = func() time.Time { return clock }

	first := l.GetLimiter("10.0.0.1")
	l.GetLimiter("10.0.0.2")
	assert.Equal(t, 2, l.Len())
	assert.Same(t, first, l.GetLimiter("10.0.0.1"), "bucket is reused while the client is active")

	clock = clock.Add(limiterIdleTTL / 2)
	l.GetLimiter("10.0.0.1")

	clock = clock.Add(limiterIdleTTL/2 + time.Second)
	l.GetLimiter("10.0.0.3")
	assert.Equal(t, 2, l.Len(), "10.0.0.2 went idle and was swept")
	assert.Same(t, first, l.GetLimiter("10.0.0.1"))
}

func TestIPRateLimiter_CapsTrackedClients(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(1, 1)
	l.now = func() time.Time { return clock }
	l.maxIPs = 3

	for _, ip := range []string{"a", "b", "c"} {
		l.GetLimiter(ip)
		clock = clock.Add(time.Second)
	}
	l.GetLimiter("a")
	clock = clock.Add(time.Second)

	l.GetLimiter("d")
	assert.Equal(t, 3, l.Len())

	l.mu.Lock()
	_, hasB := l.ips["b"]
	_, hasA := l.ips["a"]
	l.mu.Unlock()
	assert.False(t, hasB, "least recently seen client is evicted")
	assert.True(t, hasA)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())
	do(t, s, http.MethodGet, "/api/v1/documents", nil, "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "docoutline_http_requests_total")
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"report.docx":         "report.docx",
		"../../etc/passwd.md": "passwd.md",
		`C:\docs\notes.md`:    "C:_docs_notes.md",
		"":                    "unnamed",
		"a..b.md":             "a_b.md",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeFilename(in), "input %q", in)
	}
}
