package chi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/annex/internal/store"
	collectionuc "github.com/kailas-cloud/annex/internal/usecase/collection"
	vectoruc "github.com/kailas-cloud/annex/internal/usecase/vector"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	seed := int64(42)
	registry := store.NewRegistry(store.Defaults{
		MaxNeighbors:   16,
		EFConstruction: 200,
		SearchBreadth:  64,
		MaxElements:    1000,
		RandomSeed:     &seed,
	})

	server := NewServer(
		collectionuc.New(registry),
		vectoruc.New(registry, nil),
		zap.NewNop(),
	)

	r := chi.NewRouter()
	server.Routes(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func createDocs(t *testing.T, h http.Handler) {
	t.Helper()
	rr := doJSON(t, h, "POST", "/collections", map[string]any{
		"name": "docs",
		"dim":  3,
		"config": map[string]any{
			"distance": "l2",
		},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("create collection: got %d, body %s", rr.Code, rr.Body.String())
	}
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v (body %s)", err, rr.Body.String())
	}
	return errResp
}

func TestCreateSearchRoundTrip(t *testing.T) {
	h := newTestRouter(t)
	createDocs(t, h)

	rr := doJSON(t, h, "POST", "/collections/docs/upsert", map[string]any{
		"ids":     []uint64{1, 2, 3},
		"vectors": [][]float32{{0, 0, 0}, {1, 0, 0}, {0, 5, 0}},
		"payloads": []any{
			map[string]string{"title": "origin"},
			nil,
			nil,
		},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("upsert: got %d, body %s", rr.Code, rr.Body.String())
	}
	var up struct {
		Upserted int `json:"upserted"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&up); err != nil {
		t.Fatalf("decode upsert response: %v", err)
	}
	if up.Upserted != 3 {
		t.Errorf("upserted = %d, want 3", up.Upserted)
	}

	rr = doJSON(t, h, "POST", "/collections/docs/search", map[string]any{
		"query": []float32{0, 0, 0},
		"top_k": 2,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("search: got %d, body %s", rr.Code, rr.Body.String())
	}

	var pairs [][]float64
	if err := json.NewDecoder(rr.Body).Decode(&pairs); err != nil {
		t.Fatalf("decode search response: %v (body %s)", err, rr.Body.String())
	}
	want := [][]float64{{1, 0}, {2, 1}}
	if len(pairs) != 2 {
		t.Fatalf("results = %v, want %v", pairs, want)
	}
	for i := range want {
		if pairs[i][0] != want[i][0] || pairs[i][1] != want[i][1] {
			t.Errorf("result %d = %v, want %v", i, pairs[i], want[i])
		}
	}
}

func TestCreateCollection_Duplicate_409(t *testing.T) {
	h := newTestRouter(t)
	createDocs(t, h)

	rr := doJSON(t, h, "POST", "/collections", map[string]any{"name": "docs", "dim": 3})
	if rr.Code != http.StatusConflict {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusConflict)
	}
	if code := decodeError(t, rr).Code; code != CodeCollectionExists {
		t.Errorf("code = %s, want %s", code, CodeCollectionExists)
	}
}

func TestCreateCollection_InvalidBody_400(t *testing.T) {
	h := newTestRouter(t)

	req := httptest.NewRequest("POST", "/collections", bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestCreateCollection_InvalidConfig_400(t *testing.T) {
	h := newTestRouter(t)

	rr := doJSON(t, h, "POST", "/collections", map[string]any{
		"name":   "docs",
		"dim":    3,
		"config": map[string]any{"distance": "manhattan"},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if code := decodeError(t, rr).Code; code != CodeInvalidConfig {
		t.Errorf("code = %s, want %s", code, CodeInvalidConfig)
	}
}

func TestListCollections(t *testing.T) {
	h := newTestRouter(t)

	rr := doJSON(t, h, "GET", "/collections", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusOK)
	}
	var names []string
	if err := json.NewDecoder(rr.Body).Decode(&names); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("names = %v, want empty", names)
	}

	createDocs(t, h)
	rr = doJSON(t, h, "GET", "/collections", nil)
	if err := json.NewDecoder(rr.Body).Decode(&names); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(names) != 1 || names[0] != "docs" {
		t.Errorf("names = %v, want [docs]", names)
	}
}

func TestDeleteCollection(t *testing.T) {
	h := newTestRouter(t)
	createDocs(t, h)

	rr := doJSON(t, h, "DELETE", "/collections/docs", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: got %d, want %d", rr.Code, http.StatusNoContent)
	}

	rr = doJSON(t, h, "DELETE", "/collections/docs", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("double delete: got %d, want %d", rr.Code, http.StatusNotFound)
	}
	if code := decodeError(t, rr).Code; code != CodeCollectionNotFound {
		t.Errorf("code = %s, want %s", code, CodeCollectionNotFound)
	}
}

func TestUpsert_UnknownCollection_404(t *testing.T) {
	h := newTestRouter(t)

	rr := doJSON(t, h, "POST", "/collections/ghost/upsert", map[string]any{
		"ids":     []uint64{1},
		"vectors": [][]float32{{1, 2, 3}},
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestUpsert_DimensionMismatch_400(t *testing.T) {
	h := newTestRouter(t)
	createDocs(t, h)

	rr := doJSON(t, h, "POST", "/collections/docs/upsert", map[string]any{
		"ids":     []uint64{1},
		"vectors": [][]float32{{1, 2}},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	errResp := decodeError(t, rr)
	if errResp.Code != CodeDimensionMismatch {
		t.Errorf("code = %s, want %s", errResp.Code, CodeDimensionMismatch)
	}
	// The message names the expected and actual lengths.
	if errResp.Message == "" || errResp.Message == "vector dimension mismatch" {
		t.Errorf("message lacks detail: %q", errResp.Message)
	}
}

func TestUpsert_ArityMismatch_400(t *testing.T) {
	h := newTestRouter(t)
	createDocs(t, h)

	rr := doJSON(t, h, "POST", "/collections/docs/upsert", map[string]any{
		"ids":     []uint64{1, 2},
		"vectors": [][]float32{{1, 2, 3}},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if code := decodeError(t, rr).Code; code != CodeArityMismatch {
		t.Errorf("code = %s, want %s", code, CodeArityMismatch)
	}
}

func TestUpsert_ZeroVectorUnderCosine_400(t *testing.T) {
	h := newTestRouter(t)

	rr := doJSON(t, h, "POST", "/collections", map[string]any{
		"name":   "cos",
		"dim":    3,
		"config": map[string]any{"distance": "cosine"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("create: got %d", rr.Code)
	}

	rr = doJSON(t, h, "POST", "/collections/cos/upsert", map[string]any{
		"ids":     []uint64{1},
		"vectors": [][]float32{{0, 0, 0}},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if code := decodeError(t, rr).Code; code != CodeZeroVector {
		t.Errorf("code = %s, want %s", code, CodeZeroVector)
	}
}

func TestSearch_InvalidTopK_400(t *testing.T) {
	h := newTestRouter(t)
	createDocs(t, h)

	rr := doJSON(t, h, "POST", "/collections/docs/search", map[string]any{
		"query": []float32{0, 0, 0},
		"top_k": 0,
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestSearch_EmptyCollection(t *testing.T) {
	h := newTestRouter(t)
	createDocs(t, h)

	rr := doJSON(t, h, "POST", "/collections/docs/search", map[string]any{
		"query": []float32{0, 0, 0},
		"top_k": 5,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusOK)
	}
	var pairs [][]float64
	if err := json.NewDecoder(rr.Body).Decode(&pairs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(pairs) != 0 {
		t.Errorf("pairs = %v, want empty", pairs)
	}
}

func TestUpsertText_NoEmbedder_501(t *testing.T) {
	h := newTestRouter(t)
	createDocs(t, h)

	rr := doJSON(t, h, "POST", "/collections/docs/upsert-text", map[string]any{
		"ids":   []uint64{1},
		"texts": []string{"hello"},
	})
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusNotImplemented)
	}
	if code := decodeError(t, rr).Code; code != CodeNotImplemented {
		t.Errorf("code = %s, want %s", code, CodeNotImplemented)
	}
}

func TestHealth(t *testing.T) {
	h := newTestRouter(t)

	rr := doJSON(t, h, "GET", "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusOK)
	}
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}
