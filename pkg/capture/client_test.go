package capture

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a-kuz/shader-maker/pkg/models"
)

func TestClient_Capture_Screenshots(t *testing.T) {
	var lastRequest captureRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/capture", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastRequest))

		_ = json.NewEncoder(w).Encode(captureResponse{
			Screenshots: []string{"data:image/png;base64,AAAA", "data:image/png;base64,BBBB"},
		})
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL)

	result, err := client.Capture(context.Background(), "void mainImage() {}", nil)
	require.NoError(t, err)

	assert.Len(t, result.Screenshots, 2)
	assert.Nil(t, result.CompilationError)

	assert.Equal(t, "void mainImage() {}", lastRequest.Code)
	assert.Equal(t, DefaultTimeValues, lastRequest.Times)
	assert.Equal(t, DefaultWidth, lastRequest.Width)
	assert.Equal(t, DefaultHeight, lastRequest.Height)
}

func TestClient_Capture_CompilationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(captureResponse{
			CompilationError: &models.CompilationError{
				Message: "undeclared identifier",
				Detail:  "line 3: foo",
			},
		})
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL)

	result, err := client.Capture(context.Background(), "broken", []float64{0.5})
	require.NoError(t, err)

	assert.Empty(t, result.Screenshots)
	require.NotNil(t, result.CompilationError)
	assert.Equal(t, "undeclared identifier", result.CompilationError.Message)
}

func TestClient_Capture_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(captureResponse{})
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL)

	_, err := client.Capture(context.Background(), "void mainImage() {}", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither screenshots nor a compilation error")
}

func TestClient_Capture_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL)

	_, err := client.Capture(context.Background(), "void mainImage() {}", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
