package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"rallytiming/internal/classify"
	"rallytiming/internal/config"
	"rallytiming/internal/integrations"
	"rallytiming/internal/model"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.GetDefaultConfig()
	cfg.SeedFile = "../../db/seed/demo.yaml"
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	h.ServeHTTP(rr, req)
	return rr
}

func decodeClassification(t *testing.T, rr *httptest.ResponseRecorder) classify.Classification {
	t.Helper()
	var c classify.Classification
	if err := json.Unmarshal(rr.Body.Bytes(), &c); err != nil {
		t.Fatalf("decode: %v: %s", err, rr.Body.String())
	}
	return c
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestClassificationEndpoint(t *testing.T) {
	h := newTestServer(t).Routes()
	rr := do(t, h, http.MethodGet, "/v1/events/1/classification", nil)
	if rr.Code != 200 {
		t.Fatalf("classification: %d %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Fatal("missing request id")
	}
	c := decodeClassification(t, rr)
	if c.EventID != 1 || len(c.Categories) != 2 || c.ID == "" {
		t.Fatalf("unexpected classification %+v", c)
	}

	rr = do(t, h, http.MethodGet, "/v1/events/1/classification?categoryId=2&stage=3", nil)
	c = decodeClassification(t, rr)
	if len(c.Categories) != 1 || c.StageOrder == nil || *c.StageOrder != 3 || c.Categories[0].Rows[0].TotalTime != 2600 {
		t.Fatalf("filtered view: %+v", c)
	}

	if rr := do(t, h, http.MethodGet, "/v1/events/1/classification?stage=zero", nil); rr.Code != 400 {
		t.Fatalf("bad stage: want 400, got %d", rr.Code)
	}
	rr = do(t, h, http.MethodGet, "/v1/events/99/classification", nil)
	if rr.Code != 404 || !strings.Contains(rr.Header().Get("Content-Type"), "problem+json") {
		t.Fatalf("unknown event: want 404 problem, got %d %s", rr.Code, rr.Header().Get("Content-Type"))
	}
}

func TestClassificationWorkbook(t *testing.T) {
	h := newTestServer(t).Routes()
	rr := do(t, h, http.MethodGet, "/v1/events/1/classification.xlsx", nil)
	if rr.Code != 200 {
		t.Fatalf("xlsx: %d %s", rr.Code, rr.Body.String())
	}
	f, err := excelize.OpenReader(rr.Body)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	if got := f.GetSheetList(); len(got) != 2 || got[0] != "Cars" || got[1] != "Motorcycles" {
		t.Fatalf("unexpected sheets %v", got)
	}
}

func TestResultLifecycleInvalidatesClassification(t *testing.T) {
	h := newTestServer(t).Routes()
	before := decodeClassification(t, do(t, h, http.MethodGet, "/v1/events/1/classification?categoryId=1", nil))

	rr := do(t, h, http.MethodPost, "/v1/stage-results", []byte(`{"eventId":1,"stageOrder":3,"vehicleId":3,"elapsedTimeSeconds":5000}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rr.Code, rr.Body.String())
	}
	var created model.StageResult
	_ = json.Unmarshal(rr.Body.Bytes(), &created)

	after := decodeClassification(t, do(t, h, http.MethodGet, "/v1/events/1/classification?categoryId=1", nil))
	if after.ID == before.ID {
		t.Fatal("cached classification served after a write")
	}
	last := after.Categories[0].Rows[2]
	if last.VehicleID != 3 || last.TotalTime != 6900 {
		t.Fatalf("new result not reflected: %+v", last)
	}

	// ISO-8601 penalty via query params overwrites all three components
	rr = do(t, h, http.MethodPut, "/v1/stage-results/"+itoa(created.ID)+"/penalty?penaltySpeed=PT1M&penaltyWaypoint=bogus", nil)
	if rr.Code != 200 {
		t.Fatalf("penalty: %d %s", rr.Code, rr.Body.String())
	}
	var penalized model.StageResult
	_ = json.Unmarshal(rr.Body.Bytes(), &penalized)
	if *penalized.PenaltySpeed != 60 || *penalized.PenaltyWaypoint != 0 || *penalized.DiscountClaim != 0 {
		t.Fatalf("unexpected penalty %+v", penalized)
	}

	rr = do(t, h, http.MethodPut, "/v1/stage-results/"+itoa(created.ID)+"/penalty", []byte(`{"penaltySpeedSeconds":-1}`))
	if rr.Code != 400 {
		t.Fatalf("negative penalty: want 400, got %d", rr.Code)
	}

	rr = do(t, h, http.MethodPut, "/v1/stage-results/"+itoa(created.ID), []byte(`{"elapsedTimeSeconds":100}`))
	if rr.Code != 200 {
		t.Fatalf("update: %d %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, h, http.MethodDelete, "/v1/stage-results/"+itoa(created.ID), nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rr.Code)
	}
	if rr := do(t, h, http.MethodDelete, "/v1/stage-results/"+itoa(created.ID), nil); rr.Code != 404 {
		t.Fatalf("second delete: want 404, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/v1/stage-results", []byte(`{"vehicleId":3}`)); rr.Code != 400 {
		t.Fatalf("missing stage: want 400, got %d", rr.Code)
	}
}

func TestEventResultsSorted(t *testing.T) {
	h := newTestServer(t).Routes()
	rr := do(t, h, http.MethodGet, "/v1/events/1/results", nil)
	var body struct {
		Items []model.StageResult `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || len(body.Items) != 9 {
		t.Fatalf("results: %v %d", err, len(body.Items))
	}
	if body.Items[0].StageID != 101 || body.Items[len(body.Items)-1].StageID != 103 {
		t.Fatalf("results not sorted by stage order")
	}
}

func TestImportCSV(t *testing.T) {
	h := newTestServer(t).Routes()
	csvBody := "stage_order,vehicle_id,elapsed_seconds\n3,3,PT40M\n9,3,10\nx,1,1\n"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "timing.csv")
	_, _ = fw.Write([]byte(csvBody))
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/v1/events/1/results/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("import: %d %s", rr.Code, rr.Body.String())
	}
	var rep struct {
		Imported int `json:"imported"`
		Rejected []struct {
			Line int `json:"line"`
		} `json:"rejected"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &rep)
	if rep.Imported != 1 || len(rep.Rejected) != 2 {
		t.Fatalf("unexpected report %s", rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/events/1/results/import", strings.NewReader("vehicle_id\n1\n"))
	req.Header.Set("Content-Type", "text/csv")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != 400 {
		t.Fatalf("missing column: want 400, got %d", rr.Code)
	}
}

func TestImportRequiresSignature(t *testing.T) {
	s := newTestServer(t)
	s.Config.Import.Secret = "timing-key"
	h := s.Routes()
	body := []byte("stage_order,vehicle_id,elapsed_seconds\n3,3,2400\n")

	post := func(sig string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/events/1/results/import", bytes.NewReader(body))
		req.Header.Set("Content-Type", "text/csv")
		if sig != "" {
			req.Header.Set(integrations.SignatureHeader, sig)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}
	if code := post(""); code != http.StatusUnauthorized {
		t.Fatalf("unsigned: want 401, got %d", code)
	}
	if code := post(integrations.Sign("wrong", body)); code != http.StatusUnauthorized {
		t.Fatalf("bad signature: want 401, got %d", code)
	}
	if code := post(integrations.Sign("timing-key", body)); code != 200 {
		t.Fatalf("signed: want 200, got %d", code)
	}
}

func TestElapsedTimesAndComposition(t *testing.T) {
	h := newTestServer(t).Routes()
	rr := do(t, h, http.MethodPost, "/v1/events/1/elapsed-times", nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), `"updated"`) {
		t.Fatalf("elapsed: %d %s", rr.Code, rr.Body.String())
	}

	if rr := do(t, h, http.MethodDelete, "/v1/events/1/vehicles/4", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("unregister: %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/v1/events/1/vehicles/4", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("register: %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/v1/events/1/vehicles/999", nil); rr.Code != 404 {
		t.Fatalf("register unknown: want 404, got %d", rr.Code)
	}

	rr = do(t, h, http.MethodPut, "/v1/vehicles/4/category", []byte(`{"categoryId":1}`))
	if rr.Code != 200 {
		t.Fatalf("category: %d %s", rr.Code, rr.Body.String())
	}
	c := decodeClassification(t, do(t, h, http.MethodGet, "/v1/events/1/classification", nil))
	if len(c.Categories) != 1 {
		t.Fatalf("vehicle 4 must have moved to cars: %+v", c.Categories)
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t)
	s.Limiter = NewRateLimiter(1, 2)
	h := s.Routes()
	codes := []int{}
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/events/1/results", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("want 200,200,429 got %v", codes)
	}
	// health checks are not limited
	if rr := do(t, h, http.MethodGet, "/healthz", nil); rr.Code != 200 {
		t.Fatalf("healthz limited: %d", rr.Code)
	}
}

func TestGetIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := getIP(req); got != "192.0.2.1" {
		t.Fatalf("remote addr: %s", got)
	}
	req.Header.Set("X-Real-IP", "198.51.100.2")
	if got := getIP(req); got != "198.51.100.2" {
		t.Fatalf("x-real-ip: %s", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := getIP(req); got != "203.0.113.9" {
		t.Fatalf("x-forwarded-for: %s", got)
	}
}

func TestMetricsAndDebug(t *testing.T) {
	h := newTestServer(t).Routes()
	_ = do(t, h, http.MethodGet, "/v1/events/1/classification", nil)
	rr := do(t, h, http.MethodGet, "/metrics", nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), "classification_cache_total") {
		t.Fatalf("metrics: %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `path="/v1/events/{eventId:[0-9]+}/classification"`) {
		t.Fatal("http metrics must be labelled by route template")
	}
	rr = do(t, h, http.MethodGet, "/debug/info", nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), `"goVersion"`) {
		t.Fatalf("debug: %d %s", rr.Code, rr.Body.String())
	}
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
