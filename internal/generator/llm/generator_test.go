package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/auditsnap/internal/audit"
)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) }

const reportJSON = `{
  "overallScore": 78,
  "scores": {"seo": 80, "performance": 70, "accessibility": 75, "security": 85},
  "summary": {"keyFindings": ["Fast first paint"], "criticalIssues": [], "recommendations": ["Add alt text"]},
  "seo": [{"name": "Meta Title", "status": "pass", "description": "Title present."}],
  "performance": {"metrics": [{"name": "LCP", "value": "2.1s", "status": "good"}], "issues": []},
  "accessibility": {"wcag": [{"level": "A", "status": "fail", "description": "Images lack alt text."}], "issues": []},
  "security": {"headers": [{"name": "Strict-Transport-Security", "status": "pass", "description": "HSTS set."}], "findings": []}
}`

func completionServer(t *testing.T, status int, content string, seen *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		if status != http.StatusOK {
			http.Error(w, `{"error":{"message":"rate limited"}}`, status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newGenerator(t *testing.T, baseURL string) *Generator {
	t.Helper()
	g, err := New(Config{APIKey: "sk-test", BaseURL: baseURL + "/"}, fixedClock{}, nil)
	require.NoError(t, err)
	return g
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := New(Config{APIKey: "  "}, fixedClock{}, nil)
	require.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = New(Config{APIKey: "sk"}, nil, nil)
	require.Error(t, err)
}

func TestGenerateParsesReport(t *testing.T) {
	t.Parallel()

	var seen chatRequest
	srv := completionServer(t, http.StatusOK, reportJSON, &seen)
	data, err := newGenerator(t, srv.URL).Generate(context.Background(), "https://example.com")
	require.NoError(t, err)

	require.Equal(t, defaultModel, seen.Model)
	require.Equal(t, maxTokens, seen.MaxTokens)
	require.InDelta(t, temperature, seen.Temperature, 0.001)
	require.Len(t, seen.Messages, 2)
	require.Equal(t, systemPrompt, seen.Messages[0].Content)
	require.Contains(t, seen.Messages[1].Content, "https://example.com")

	require.Equal(t, "https://example.com", data.URL)
	require.Equal(t, "2025-03-14", data.Date)
	require.Equal(t, 78, data.OverallScore)
	require.Equal(t, 85, data.Scores.Security)
	require.Equal(t, "fail", data.Accessibility.WCAG[0].Status)
}

func TestGenerateStripsCodeFence(t *testing.T) {
	t.Parallel()

	srv := completionServer(t, http.StatusOK, "```json\n"+reportJSON+"\n```", nil)
	data, err := newGenerator(t, srv.URL).Generate(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.Equal(t, 78, data.OverallScore)
}

func TestGenerateRejectsInvalidPayload(t *testing.T) {
	t.Parallel()

	srv := completionServer(t, http.StatusOK, `{"overallScore": 140, "seo": [{"name": "x", "status": "great"}]}`, nil)
	_, err := newGenerator(t, srv.URL).Generate(context.Background(), "https://example.com")
	require.ErrorIs(t, err, audit.ErrInvalidPayload)
}

func TestGenerateErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		status  int
		content string
		want    string
	}{
		"http error": {status: http.StatusTooManyRequests, want: "completions returned HTTP 429"},
		"not json":   {status: http.StatusOK, content: "I cannot audit that site.", want: "parse report content"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			srv := completionServer(t, tc.status, tc.content, nil)
			_, err := newGenerator(t, srv.URL).Generate(context.Background(), "https://example.com")
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestStripFence(t *testing.T) {
	t.Parallel()

	require.Equal(t, `{"a":1}`, stripFence("  {\"a\":1}\n"))
	require.Equal(t, `{"a":1}`, stripFence("```json\n{\"a\":1}\n```"))
	require.Equal(t, `{"a":1}`, stripFence("```\n{\"a\":1}```"))
}
