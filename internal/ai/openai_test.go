package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/filmatlas/filmatlas/internal/models"
)

func TestNewOpenAIProviderRequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{}, zap.NewNop())
	require.Error(t, err)
}

func TestGenerateDescription(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "  A hacker discovers the world is a simulation.  "}, "finish_reason": "stop"}]
		}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test", BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	year := 1999
	text, err := p.GenerateDescription(context.Background(), Request{
		EntityType: models.EntityMovie,
		Name:       "The Matrix",
		Year:       &year,
		Locale:     "en-US",
		Reference:  &models.CanonicalRecord{Overview: "A computer hacker learns the truth."},
	})
	require.NoError(t, err)
	assert.Equal(t, "A hacker discovers the world is a simulation.", text, "output is trimmed")

	msgs, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	user := msgs[1].(map[string]any)["content"].(string)
	assert.Contains(t, user, `"The Matrix" (1999)`)
	assert.Contains(t, user, "Reference material")
}

func TestGenerateDescriptionEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "chatcmpl-2", "object": "chat.completion", "choices": []}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test", BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	_, err = p.GenerateDescription(context.Background(), Request{Name: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestBuildPromptPerEntityType(t *testing.T) {
	assert.Contains(t, buildPrompt(Request{EntityType: models.EntityPerson, Name: "Keanu Reeves"}), "person")
	assert.Contains(t, buildPrompt(Request{EntityType: models.EntityTVSeries, Name: "Dark"}), "TV series")
	assert.Contains(t, buildPrompt(Request{EntityType: models.EntityMovie, Name: "Dune"}), "movie")
}
