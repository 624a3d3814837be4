package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpulse/stockpulse/internal/domain"
)

func TestArticlesFetchesSince(t *testing.T) {
	published := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/articles", r.URL.Path)
		require.NotEmpty(t, r.URL.Query().Get("since"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{
				"id":                "a1",
				"title":             "XYZ beats estimates",
				"validated_symbols": []string{"XYZ"},
				"published_date":    published,
			},
			{"id": "a2", "title": "no tickers here"},
		})
	}))
	defer srv.Close()

	c := New(Config{ArticlesURL: srv.URL, SentimentURL: srv.URL}, zerolog.Nop())
	articles, err := c.Articles(context.Background(), published.Add(-time.Hour))
	require.NoError(t, err)

	require.Len(t, articles, 2)
	assert.Equal(t, "a1", articles[0].ID)
	assert.Equal(t, []string{"XYZ"}, articles[0].Symbols)
	assert.True(t, published.Equal(articles[0].PublishedAt))
	assert.Empty(t, articles[1].Symbols, "symbol-less articles pass through as no-signal items")
}

func TestScoresMapsSentiment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/scores", r.URL.Path)
		var body map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"a1", "a2"}, body["article_ids"])

		w.Header().Set("Content-Type", "application/json")
		// a2 is unknown to the scorer and simply absent.
		json.NewEncoder(w).Encode(map[string]interface{}{
			"a1": map[string]interface{}{
				"sentiment_score":  0.62,
				"confidence_score": 0.91,
				"prediction":       "bullish",
			},
		})
	}))
	defer srv.Close()

	c := New(Config{ArticlesURL: srv.URL, SentimentURL: srv.URL}, zerolog.Nop())
	scores, err := c.Scores(context.Background(), []string{"a1", "a2"})
	require.NoError(t, err)

	require.Len(t, scores, 1)
	assert.Equal(t, domain.Sentiment{
		Score:      0.62,
		Confidence: 0.91,
		Prediction: domain.PredictionBullish,
	}, scores["a1"])
}

func TestScoresEmptyInputSkipsCall(t *testing.T) {
	c := New(Config{ArticlesURL: "http://unused", SentimentURL: "http://unused"}, zerolog.Nop())
	scores, err := c.Scores(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestArticlesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{ArticlesURL: srv.URL, SentimentURL: srv.URL}, zerolog.Nop())
	_, err := c.Articles(context.Background(), time.Now())
	assert.Error(t, err)
}
