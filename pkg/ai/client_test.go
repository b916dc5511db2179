package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a-kuz/shader-maker/pkg/protocol"
)

func newCompletionServer(t *testing.T, text string) (*httptest.Server, *completionRequest) {
	t.Helper()

	var lastRequest completionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/complete", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastRequest))

		_ = json.NewEncoder(w).Encode(completionResponse{
			Text:             text,
			Model:            "test-model",
			PromptTokens:     42,
			CompletionTokens: 7,
		})
	}))
	t.Cleanup(server.Close)

	return server, &lastRequest
}

func TestClient_Generate(t *testing.T) {
	server, lastRequest := newCompletionServer(t,
		"Here you go:\n```glsl\nvoid mainImage(out vec4 c, in vec2 p) {}\n```\n")

	client := NewClient(server.URL)

	result, err := client.Generate(context.Background(), "a rotating cube")
	require.NoError(t, err)

	assert.Equal(t, "void mainImage(out vec4 c, in vec2 p) {}", result.Code)
	require.NotNil(t, result.Interaction)
	assert.Equal(t, "test-model", result.Interaction.Model)
	assert.Equal(t, 42, result.Interaction.PromptTokens)
	assert.Contains(t, lastRequest.Prompt, "a rotating cube")
	assert.Empty(t, lastRequest.Images)
}

func TestClient_Generate_EmptyOutput(t *testing.T) {
	server, _ := newCompletionServer(t, "   ")

	client := NewClient(server.URL)

	_, err := client.Generate(context.Background(), "a rotating cube")
	assert.ErrorIs(t, err, protocol.ErrEmptyGeneration)
}

func TestClient_Evaluate(t *testing.T) {
	server, lastRequest := newCompletionServer(t,
		"SCORE: 83.5\nFEEDBACK: Nice colors, but the cube never rotates.")

	client := NewClient(server.URL)

	result, err := client.Evaluate(context.Background(), "a rotating cube",
		"void mainImage() {}", []string{"data:image/png;base64,AAAA"})
	require.NoError(t, err)

	assert.InDelta(t, 83.5, result.Score, 0.001)
	assert.Equal(t, "Nice colors, but the cube never rotates.", result.Feedback)
	assert.Len(t, lastRequest.Images, 1)
}

func TestClient_Evaluate_Unparseable(t *testing.T) {
	server, _ := newCompletionServer(t, "looks fine to me")

	client := NewClient(server.URL)

	_, err := client.Evaluate(context.Background(), "a rotating cube",
		"void mainImage() {}", nil)
	assert.ErrorIs(t, err, ErrUnparseableEvaluation)
}

func TestClient_Fix_SendsError(t *testing.T) {
	server, lastRequest := newCompletionServer(t,
		"```glsl\nvoid mainImage() { /* fixed */ }\n```")

	client := NewClient(server.URL)

	result, err := client.Fix(context.Background(), "a rotating cube",
		"broken", "undeclared identifier", "line 3: foo")
	require.NoError(t, err)

	assert.Equal(t, "void mainImage() { /* fixed */ }", result.Code)
	assert.Contains(t, lastRequest.Prompt, "undeclared identifier")
	assert.Contains(t, lastRequest.Prompt, "line 3: foo")
}

func TestClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL)

	_, err := client.Generate(context.Background(), "a rotating cube")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestExtractCode(t *testing.T) {
	testCases := []struct {
		name string
		text string
		want string
	}{
		{
			name: "glsl fence",
			text: "```glsl\nvec3 color;\n```",
			want: "vec3 color;",
		},
		{
			name: "bare fence",
			text: "prose\n```\nvec3 color;\n```\nmore prose",
			want: "vec3 color;",
		},
		{
			name: "no fence returns whole text",
			text: "vec3 color;",
			want: "vec3 color;",
		},
		{
			name: "blank",
			text: "  \n ",
			want: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractCode(tc.text))
		})
	}
}

func TestParseEvaluation(t *testing.T) {
	score, feedback, err := ParseEvaluation("SCORE: 91\nFEEDBACK: shiny")
	require.NoError(t, err)
	assert.InDelta(t, 91.0, score, 0.001)
	assert.Equal(t, "shiny", feedback)

	_, _, err = ParseEvaluation("no verdict here")
	assert.ErrorIs(t, err, ErrUnparseableEvaluation)
}
