package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitfield/tryon-backend/pkg/config"
	"github.com/fitfield/tryon-backend/pkg/enums"
	"github.com/fitfield/tryon-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard})
}

func TestErrorRetriable(t *testing.T) {
	assert.True(t, (&Error{StatusCode: 500}).Retriable())
	assert.True(t, (&Error{StatusCode: 503}).Retriable())
	assert.False(t, (&Error{StatusCode: 422}).Retriable())
	assert.False(t, (&Error{StatusCode: 401}).Retriable())
}

func TestResultCacheExpiry(t *testing.T) {
	cache := newResultCache(time.Minute)
	current := time.Now()
	cache.now = func() time.Time { return current }

	cache.Put("job-1", Result{ImageURL: "https://cdn.example.com/a.png"})

	got, ok := cache.Get("job-1")
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example.com/a.png", got.ImageURL)

	current = current.Add(2 * time.Minute)
	_, ok = cache.Get("job-1")
	assert.False(t, ok)

	cache.Put("job-2", Result{ImageURL: "https://cdn.example.com/b.png"})
	cache.Reset()
	_, ok = cache.Get("job-2")
	assert.False(t, ok)
}

func TestFashnSubmitRender(t *testing.T) {
	var gotAuth string
	var gotBody fashnRunRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(fashnRunResponse{ID: "fashn-123"})
	}))
	defer server.Close()

	adapter, err := NewFashn(config.FashnConfig{
		APIKey:  "fk-test",
		BaseURL: server.URL,
		ModelID: "tryon-v1.6",
	}, testLogger())
	require.NoError(t, err)

	submission, err := adapter.SubmitRender(context.Background(),
		Image{Data: []byte("person"), MimeType: "image/jpeg"},
		Image{Data: []byte("garment"), MimeType: "image/png"},
		SubmitOptions{Category: enums.GarmentCategoryDresses, CallbackURL: "https://api.example.com/hook"},
	)
	require.NoError(t, err)
	assert.Equal(t, "fashn-123", submission.JobID)
	assert.Equal(t, "Bearer fk-test", gotAuth)
	assert.Equal(t, "one-pieces", gotBody.Inputs.Category)
	assert.Equal(t, "https://api.example.com/hook", gotBody.WebhookURL)
}

func TestFashnSubmitRenderUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	adapter, err := NewFashn(config.FashnConfig{APIKey: "fk-test", BaseURL: server.URL}, testLogger())
	require.NoError(t, err)

	_, err = adapter.SubmitRender(context.Background(),
		Image{Data: []byte("person")}, Image{Data: []byte("garment")}, SubmitOptions{})
	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusServiceUnavailable, provErr.StatusCode)
	assert.True(t, provErr.Retriable())
}

func TestKlingSubmitRenderSignsToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(klingEnvelope[klingSubmitData]{Data: klingSubmitData{TaskID: "task-9"}})
	}))
	defer server.Close()

	adapter, err := NewKling(config.KlingConfig{
		AccessKey: "ak",
		SecretKey: "sk",
		BaseURL:   server.URL,
		ModelID:   "kolors-virtual-try-on-v1-5",
	}, testLogger())
	require.NoError(t, err)

	submission, err := adapter.SubmitRender(context.Background(),
		Image{Data: []byte("person")}, Image{Data: []byte("garment")}, SubmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, "task-9", submission.JobID)
	assert.Contains(t, gotAuth, "Bearer ey")
}

func TestReplicateSubmitRenderCachesResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(replicatePredictionResponse{
			ID:     "pred-1",
			Status: "succeeded",
			Output: []any{"https://replicate.delivery/out.png"},
		})
	}))
	defer server.Close()

	adapter, err := NewReplicate(config.ReplicateConfig{
		APIToken: "r8-test",
		BaseURL:  server.URL,
		CacheTTL: time.Minute,
	}, testLogger())
	require.NoError(t, err)

	submission, err := adapter.SubmitRender(context.Background(),
		Image{Data: []byte("person")}, Image{Data: []byte("garment")},
		SubmitOptions{Category: enums.GarmentCategoryBottoms})
	require.NoError(t, err)
	require.NotEmpty(t, submission.JobID)

	result, err := adapter.GetResult(context.Background(), submission.JobID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "https://replicate.delivery/out.png", result.ImageURL)

	adapter.ResetCache()
	result, err = adapter.GetResult(context.Background(), submission.JobID)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestRegistry(t *testing.T) {
	fashn, err := NewFashn(config.FashnConfig{APIKey: "fk", BaseURL: "https://api.fashn.ai"}, testLogger())
	require.NoError(t, err)

	registry, err := NewRegistry(enums.ProviderNameFashn, fashn)
	require.NoError(t, err)

	adapter, err := registry.Get(enums.ProviderNameFashn)
	require.NoError(t, err)
	assert.Equal(t, enums.ProviderNameFashn, adapter.Name())
	assert.Equal(t, enums.ProviderNameFashn, registry.Default().Name())

	_, err = registry.Get(enums.ProviderNameKling)
	assert.Error(t, err)

	_, err = NewRegistry(enums.ProviderNameKling, fashn)
	assert.Error(t, err)
}
