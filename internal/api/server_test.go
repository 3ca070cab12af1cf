package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nvandessel/forensic-council/internal/catalog"
	"github.com/nvandessel/forensic-council/internal/clock"
	"github.com/nvandessel/forensic-council/internal/council"
	"github.com/nvandessel/forensic-council/internal/engine"
	"github.com/nvandessel/forensic-council/internal/intake"
	"github.com/nvandessel/forensic-council/internal/models"
	"github.com/nvandessel/forensic-council/internal/ratelimit"
	"github.com/nvandessel/forensic-council/internal/store"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type testEnv struct {
	srv   *Server
	svc   *council.Service
	clock *clock.Virtual
	root  string
}

func newTestEnv(t *testing.T, maxUpload int64) *testEnv {
	t.Helper()
	v := clock.NewVirtual(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc, err := council.New(council.Options{
		Catalog: catalog.Default(),
		Timing: engine.Timing{
			Analyzing:  10 * time.Millisecond,
			Initiating: 10 * time.Millisecond,
			Stage:      10 * time.Millisecond,
		},
		Store:     store.NewInMemoryReportStore(),
		Validator: intake.NewValidator(),
		Scheduler: v,
		Now:       v.Now,
	})
	if err != nil {
		t.Fatalf("council.New() error = %v", err)
	}
	t.Cleanup(svc.Close)

	root := t.TempDir()
	return &testEnv{
		srv:   NewServer(svc, Options{Root: root, MaxUploadBytes: maxUpload, Version: "test"}),
		svc:   svc,
		clock: v,
		root:  root,
	}
}

func (e *testEnv) do(t *testing.T, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.srv.Echo().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) writeEvidence(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(e.root, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func (e *testEnv) startByPath(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(StartRunRequest{Path: path})
	return e.do(t, http.MethodPost, "/api/run", "application/json", body)
}

func TestStartRun_RateLimited(t *testing.T) {
	env := newTestEnv(t, 0)
	env.srv = NewServer(env.svc, Options{Root: env.root, Version: "test", RunLimiter: ratelimit.NewLimiter(0, 2)})

	// Bad requests still spend tokens.
	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/api/run", "application/json", []byte(`{}`))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("request %d: expected 400, got %d", i+1, rec.Code)
		}
	}
	rec := env.do(t, http.MethodPost, "/api/run", "application/json", []byte(`{}`))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 once the burst is spent, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/run", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /api/run should not be limited, got %d", rec.Code)
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 0)
	rec := env.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["status"] != "healthy" || body["version"] != "test" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestGetCatalog(t *testing.T) {
	env := newTestEnv(t, 0)
	rec := env.do(t, http.MethodGet, "/api/catalog", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode[map[string][]AgentInfo](t, rec)
	agents := body["agents"]
	if len(agents) != catalog.Default().Size() {
		t.Fatalf("expected %d agents, got %d", catalog.Default().Size(), len(agents))
	}
	if agents[0].ID != catalog.Default().Get(0).ID {
		t.Errorf("first agent = %s, want catalog order", agents[0].ID)
	}
}

func TestStartRun_ByPath(t *testing.T) {
	env := newTestEnv(t, 0)
	path := env.writeEvidence(t, "scan.png", pngHeader)

	rec := env.startByPath(t, path)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[StartRunResponse](t, rec)
	if resp.File.Name != "scan.png" || resp.Snapshot.Phase != engine.PhaseAnalyzing {
		t.Errorf("unexpected response %+v", resp)
	}

	rec = env.startByPath(t, path)
	if rec.Code != http.StatusConflict {
		t.Errorf("second start: expected 409, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/run", "", nil)
	snap := decode[engine.Snapshot](t, rec)
	if snap.Phase != engine.PhaseAnalyzing || snap.TotalStages != catalog.Default().Size() {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestStartRun_Rejections(t *testing.T) {
	env := newTestEnv(t, 0)
	outside := filepath.Join(t.TempDir(), "scan.png")
	os.WriteFile(outside, pngHeader, 0600)

	tests := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{"empty path", "application/json", `{}`, http.StatusBadRequest},
		{"malformed json", "application/json", `{"path":`, http.StatusBadRequest},
		{"outside root", "application/json", `{"path":"` + outside + `"}`, http.StatusForbidden},
		{"not evidence", "application/json", `{"path":"` + env.writeEvidence(t, "notes.txt", []byte("hello there")) + `"}`, http.StatusUnprocessableEntity},
		{"missing file", "application/json", `{"path":"` + filepath.Join(env.root, "gone.png") + `"}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/run", tt.contentType, []byte(tt.body))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if env.svc.Snapshot().Phase != engine.PhaseIdle {
				t.Error("rejected submission started a run")
			}
		})
	}
}

func multipartBody(t *testing.T, name string, data []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	part.Write(data)
	w.Close()
	return buf.Bytes(), w.FormDataContentType()
}

func TestStartRun_Upload(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	body, ct := multipartBody(t, "../../crime scene.png", pngHeader)

	rec := env.do(t, http.MethodPost, "/api/run", ct, body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[StartRunResponse](t, rec)
	if resp.File.Name != "crime scene.png" {
		t.Errorf("file name = %q, want sanitized base name", resp.File.Name)
	}

	saved := filepath.Join(env.root, ".fcouncil", "evidence", "crime scene.png")
	if _, err := os.Stat(saved); err != nil {
		t.Errorf("upload not saved at %s: %v", saved, err)
	}
}

func TestStartRun_UploadRejected(t *testing.T) {
	tests := []struct {
		name      string
		maxUpload int64
		file      string
		data      []byte
		want      int
	}{
		{"too large", 8, "scan.png", pngHeader, http.StatusRequestEntityTooLarge},
		{"wrong type", 1 << 20, "notes.txt", []byte("plain words"), http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.maxUpload)
			body, ct := multipartBody(t, tt.file, tt.data)
			rec := env.do(t, http.MethodPost, "/api/run", ct, body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			entries, _ := os.ReadDir(filepath.Join(env.root, ".fcouncil", "evidence"))
			if len(entries) != 0 {
				t.Errorf("rejected upload left %d files behind", len(entries))
			}
		})
	}
}

func TestStartRun_MultipartWithoutFile(t *testing.T) {
	env := newTestEnv(t, 0)
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("note", "no file here")
	w.Close()

	rec := env.do(t, http.MethodPost, "/api/run", w.FormDataContentType(), buf.Bytes())
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestResetRun(t *testing.T) {
	env := newTestEnv(t, 0)
	if rec := env.startByPath(t, env.writeEvidence(t, "scan.png", pngHeader)); rec.Code != http.StatusAccepted {
		t.Fatalf("start: expected 202, got %d", rec.Code)
	}
	env.clock.Advance(25 * time.Millisecond)

	rec := env.do(t, http.MethodDelete, "/api/run", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	snap := decode[engine.Snapshot](t, rec)
	if snap.Phase != engine.PhaseIdle || snap.CurrentStageIndex != -1 || len(snap.CompletedResults) != 0 {
		t.Errorf("unexpected snapshot after reset %+v", snap)
	}
}

type reportList struct {
	Reports []models.Report `json:"reports"`
	Total   int             `json:"total"`
}

func TestReports(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(t, http.MethodGet, "/api/reports/current", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("current before any run: expected 404, got %d", rec.Code)
	}

	for _, name := range []string{"a.png", "b.png", "c.png"} {
		if rec := env.startByPath(t, env.writeEvidence(t, name, pngHeader)); rec.Code != http.StatusAccepted {
			t.Fatalf("start %s: expected 202, got %d", name, rec.Code)
		}
		env.clock.Advance(time.Second)
	}

	rec = env.do(t, http.MethodGet, "/api/reports?limit=2", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	list := decode[reportList](t, rec)
	if list.Total != 3 || len(list.Reports) != 2 || list.Reports[0].FileName != "c.png" {
		t.Fatalf("unexpected list %+v", list)
	}

	rec = env.do(t, http.MethodGet, "/api/reports?limit=x", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: expected 400, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/reports/current", "", nil)
	current := decode[models.Report](t, rec)
	if rec.Code != http.StatusOK || current.FileName != "c.png" {
		t.Errorf("current: %d %+v", rec.Code, current)
	}

	id := list.Reports[1].ID
	rec = env.do(t, http.MethodGet, "/api/reports/"+id, "", nil)
	if rec.Code != http.StatusOK || decode[models.Report](t, rec).FileName != "b.png" {
		t.Errorf("get %s: %d %s", id, rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodDelete, "/api/reports/"+id, "", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/api/reports/"+id, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/reports/"+id, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get deleted: expected 404, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/api/reports", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("clear: expected 204, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/reports", "", nil)
	if got := decode[map[string]any](t, rec)["total"]; got != float64(0) {
		t.Errorf("total after clear = %v, want 0", got)
	}
}

func TestStreamRun(t *testing.T) {
	env := newTestEnv(t, 0)
	ts := httptest.NewServer(env.srv.Echo())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/run/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first engine.Snapshot
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if first.Phase != engine.PhaseIdle {
		t.Fatalf("first snapshot phase = %s, want idle", first.Phase)
	}

	if _, err := env.svc.Analyze(context.Background(), env.writeEvidence(t, "scan.png", pngHeader)); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	env.clock.Advance(time.Second)

	for {
		var snap engine.Snapshot
		if err := conn.ReadJSON(&snap); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if snap.Done() {
			if len(snap.CompletedResults) != snap.TotalStages {
				t.Errorf("complete snapshot has %d of %d results", len(snap.CompletedResults), snap.TotalStages)
			}
			return
		}
	}
}
