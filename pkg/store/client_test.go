package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/batch"
	"github.com/Ramsey-B/clover/pkg/models"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:      baseURL,
		APIKey:       "test-key",
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func TestUpsertProducts(t *testing.T) {
	var gotPath, gotPrefer, gotAPIKey, gotAuth string
	var gotRows []batch.Row
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		gotPrefer = r.Header.Get("Prefer")
		gotAPIKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRows))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	sent, err := client.UpsertProducts(context.Background(), []batch.Row{
		{"source": "acme", "external_id": "1", "title": "Tee"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, "/rest/v1/products?on_conflict=source,external_id", gotPath)
	assert.Equal(t, "resolution=merge-duplicates,return=minimal", gotPrefer)
	assert.Equal(t, "test-key", gotAPIKey)
	assert.Equal(t, "Bearer test-key", gotAuth)
	require.Len(t, gotRows, 1)
}

func TestUpsertProductsDedupes(t *testing.T) {
	var gotRows []batch.Row
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRows))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	sent, err := client.UpsertProducts(context.Background(), []batch.Row{
		{"source": "acme", "external_id": "1", "title": "old"},
		{"source": "acme", "external_id": "1", "title": "new"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, gotRows, 1)
	assert.Equal(t, "new", gotRows[0]["title"])
}

func TestUpsertProductsEmpty(t *testing.T) {
	client := newTestClient("http://unused.invalid")
	sent, err := client.UpsertProducts(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestUpsertProductsRetriesTransient(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	sent, err := client.UpsertProducts(context.Background(), []batch.Row{
		{"source": "acme", "external_id": "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 3, attempts)
}

func TestUpsertProductsAuthFatal(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.UpsertProducts(context.Background(), []batch.Row{
		{"source": "acme", "external_id": "1"},
	})
	require.Error(t, err)
	var authErr *AuthError
	assert.ErrorAs(t, err, &authErr)
	assert.Equal(t, 1, attempts, "auth failures must not be retried")
}

func TestUpsertProductsSchemaMismatchFromServer(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "22000",
			"message": "expected 1024 dimensions, not 768",
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.UpsertProducts(context.Background(), []batch.Row{
		{"source": "acme", "external_id": "1"},
	})
	require.Error(t, err)

	var mismatch *SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 1024, mismatch.Expected)
	assert.Equal(t, 768, mismatch.Actual)
	assert.Equal(t, 1, attempts, "schema mismatches must not be retried")
}

func TestUpsertProductsClientSideDimensionCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should reach the server")
	}))
	defer server.Close()

	client := NewClient(Config{
		BaseURL:       server.URL,
		APIKey:        "test-key",
		EmbeddingDims: 4,
	}, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))

	_, err := client.UpsertProducts(context.Background(), []batch.Row{
		{"source": "acme", "external_id": "1", "embedding": models.Vector{1, 2}},
	})
	require.Error(t, err)
	var mismatch *SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 4, mismatch.Expected)
	assert.Equal(t, 2, mismatch.Actual)
}

func TestDeleteMissing(t *testing.T) {
	var deleted []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "eq.acme", r.URL.Query().Get("source"))
			assert.Equal(t, "eq.Acme Store", r.URL.Query().Get("merchant_name"))
			json.NewEncoder(w).Encode([]map[string]string{
				{"external_id": "1"},
				{"external_id": "2"},
				{"external_id": "3"},
			})
		case http.MethodDelete:
			deleted = append(deleted, r.URL.Query().Get("external_id"))
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	n, err := client.DeleteMissing(context.Background(), "acme", "Acme Store", []string{"2"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"eq.1", "eq.3"}, deleted)
}

func TestClassifyResponse(t *testing.T) {
	err := classifyResponse(http.StatusForbidden, []byte(`{"message":"forbidden"}`))
	var authErr *AuthError
	assert.ErrorAs(t, err, &authErr)

	err = classifyResponse(http.StatusBadRequest, []byte(`{"code":"PGRST102","message":"bad payload"}`))
	var mismatch *SchemaMismatchError
	assert.ErrorAs(t, err, &mismatch)

	err = classifyResponse(http.StatusBadGateway, []byte("upstream down"))
	assert.True(t, IsRetryable(err))

	err = classifyResponse(http.StatusBadRequest, []byte(`{"message":"malformed"}`))
	assert.False(t, IsRetryable(err))
}
