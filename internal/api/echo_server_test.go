package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/samcharles93/symcache/internal/symstore"
	"github.com/samcharles93/symcache/pkg/symcache"
	"github.com/samcharles93/symcache/pkg/symcache/builder"
)

func writeCache(t *testing.T, dir, name string) {
	t.Helper()
	b := builder.New()
	b.SetName(name)
	file := b.AddFile(symcache.FileRecord{NameIdx: b.AddString("main.c"), DirectoryIdx: symcache.NoIndex, CompDirIdx: b.AddString("/src")})
	mainFn := b.AddFunction(symcache.FunctionRecord{EntryAddr: 0x1000, NameIdx: b.AddString("main"), Language: symcache.LanguageC})
	inl := b.AddFunction(symcache.FunctionRecord{EntryAddr: symcache.NoAddress, NameIdx: b.AddString("add")})
	outer := b.AddSourceLocation(symcache.SourceLocationRecord{FileIdx: file, FunctionIdx: mainFn, Line: 42, ParentIdx: symcache.NoIndex})
	inner := b.AddSourceLocation(symcache.SourceLocationRecord{FileIdx: file, FunctionIdx: inl, Line: 7, ParentIdx: outer})
	b.AddRange(0x1000, outer)
	b.AddRange(0x1010, inner)
	b.AddRange(0x1020, outer)
	if err := b.WriteFile(filepath.Join(dir, name+symstore.Ext)); err != nil {
		t.Fatalf("write cache: %v", err)
	}
}

func newTestEcho(t *testing.T, opts Options) *echo.Echo {
	t.Helper()
	dir := t.TempDir()
	writeCache(t, dir, "app")
	if err := os.WriteFile(filepath.Join(dir, "corrupt"+symstore.Ext), []byte("SYMC but too short"), 0o644); err != nil {
		t.Fatalf("write corrupt cache: %v", err)
	}

	reg := prometheus.NewRegistry()
	store, err := symstore.NewRegistry(symstore.Options{Dir: dir, Registerer: reg})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if opts.Gatherer == nil {
		opts.Gatherer = reg
	}
	e := echo.New()
	NewServer(store, opts).Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSymbolicateEndpoint(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, Options{})
	rec := doJSON(t, e, http.MethodPost, "/v1/symbolicate", `{"cache":"app","addresses":["0x1014", 4096, "0x10"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Fatalf("missing request id header")
	}

	var resp SymbolicateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(resp.ID, "sym_") || resp.Cache != "app" || len(resp.Results) != 3 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	inlined := resp.Results[0]
	if !inlined.Found || len(inlined.Frames) != 2 || inlined.Address != 0x1014 {
		t.Fatalf("inlined result: %+v", inlined)
	}
	if inlined.Frames[0].Function != "add" || inlined.Frames[1].Function != "main" || inlined.Frames[1].Line != 42 {
		t.Fatalf("inlined frames: %+v", inlined.Frames)
	}
	if inlined.Frames[1].File != "/src/main.c" {
		t.Fatalf("full path: %q", inlined.Frames[1].File)
	}
	if resp.Results[2].Found || len(resp.Results[2].Frames) != 0 {
		t.Fatalf("unmapped result: %+v", resp.Results[2])
	}
	if !strings.Contains(rec.Body.String(), `"address":"0x1014"`) {
		t.Fatalf("addresses should encode as hex: %s", rec.Body.String())
	}
}

func TestSymbolicateValidation(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, Options{})
	tests := []struct {
		name   string
		body   string
		status int
		want   string
	}{
		{"missing cache", `{"addresses":[1]}`, http.StatusBadRequest, "cache is required"},
		{"no addresses", `{"cache":"app","addresses":[]}`, http.StatusBadRequest, "addresses must not be empty"},
		{"bad address", `{"cache":"app","addresses":["0xzz"]}`, http.StatusBadRequest, "invalid_request_error"},
		{"unknown field", `{"cache":"app","addresses":[1],"x":1}`, http.StatusBadRequest, "invalid_request_error"},
		{"unknown cache", `{"cache":"nope","addresses":[1]}`, http.StatusNotFound, "not_found_error"},
		{"path traversal", `{"cache":"../app","addresses":[1]}`, http.StatusBadRequest, "invalid cache name"},
		{"corrupt cache", `{"cache":"corrupt","addresses":[1]}`, http.StatusUnprocessableEntity, "header_too_small"},
	}
	for _, tt := range tests {
		rec := doJSON(t, e, http.MethodPost, "/v1/symbolicate", tt.body)
		if rec.Code != tt.status {
			t.Fatalf("%s: status %d want %d body=%s", tt.name, rec.Code, tt.status, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), tt.want) {
			t.Fatalf("%s: body %s missing %q", tt.name, rec.Body.String(), tt.want)
		}
	}
}

func TestCacheEndpoints(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, Options{})

	rec := doJSON(t, e, http.MethodGet, "/v1/caches", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status: %d body=%s", rec.Code, rec.Body.String())
	}
	var list CacheList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Data) != 2 || list.Data[0] != "app" || list.Data[1] != "corrupt" {
		t.Fatalf("caches: %v", list.Data)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/caches/app", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("info status: %d body=%s", rec.Code, rec.Body.String())
	}
	var info symstore.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.DebugName != "app" || info.Stats.Ranges != 3 || !info.HasLineInfo {
		t.Fatalf("info: %+v", info)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/caches/app/functions?offset=1&limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("functions status: %d body=%s", rec.Code, rec.Body.String())
	}
	var fns FunctionList
	if err := json.Unmarshal(rec.Body.Bytes(), &fns); err != nil {
		t.Fatalf("decode functions: %v", err)
	}
	if len(fns.Data) != 1 || fns.Data[0].Name != "add" || fns.Offset != 1 {
		t.Fatalf("functions: %+v", fns)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/caches/app/files", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"/src/main.c"`) {
		t.Fatalf("files: %d body=%s", rec.Code, rec.Body.String())
	}

	if rec := doJSON(t, e, http.MethodGet, "/v1/caches/app/functions?limit=0", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d body=%s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, e, http.MethodGet, "/v1/caches/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing cache: %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, Options{})
	if rec := doJSON(t, e, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
	if rec := doJSON(t, e, http.MethodGet, "/", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/v1/symbolicate") {
		t.Fatalf("index page: %d", rec.Code)
	}

	doJSON(t, e, http.MethodPost, "/v1/symbolicate", `{"cache":"app","addresses":[4096]}`)
	rec := doJSON(t, e, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "symcache_symbolicate_addresses_total") {
		t.Fatalf("metrics output missing symbolication counter:\n%s", rec.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, Options{RateLimit: 0.001, Burst: 1})
	if rec := doJSON(t, e, http.MethodGet, "/v1/caches", ""); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	rec := doJSON(t, e, http.MethodGet, "/v1/caches", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d want 429", rec.Code)
	}
	// Health checks are not limited.
	if rec := doJSON(t, e, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("health under limit: %d", rec.Code)
	}
}

func TestAddressJSON(t *testing.T) {
	t.Parallel()

	var a Address
	if err := a.UnmarshalJSON([]byte(`"0xffffffffffffffff"`)); err != nil || uint64(a) != ^uint64(0) {
		t.Fatalf("max address: %v %v", a, err)
	}
	if a.String() != "0xffffffffffffffff" {
		t.Fatalf("string: %s", a)
	}
}
