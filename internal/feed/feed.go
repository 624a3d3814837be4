// Package feed fetches recent news articles and their sentiment scores from
// the upstream analysis services.
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/stockpulse/stockpulse/internal/domain"
)

// Config configures the feed client.
type Config struct {
	ArticlesURL  string
	SentimentURL string
	Timeout      time.Duration
}

// Client is the HTTP adapter for the article feed and the sentiment scorer.
type Client struct {
	articles  *resty.Client
	sentiment *resty.Client
	log       zerolog.Logger
}

// New builds a feed client.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		articles:  resty.New().SetBaseURL(cfg.ArticlesURL).SetTimeout(cfg.Timeout),
		sentiment: resty.New().SetBaseURL(cfg.SentimentURL).SetTimeout(cfg.Timeout),
		log:       log.With().Str("component", "feed").Logger(),
	}
}

type articlePayload struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	ValidatedSymbols []string  `json:"validated_symbols"`
	PublishedAt      time.Time `json:"published_date"`
}

// Articles fetches articles published since the given time. Articles without
// validated symbols are still returned; they carry no signal and strategies
// skip them.
func (c *Client) Articles(ctx context.Context, since time.Time) ([]domain.Article, error) {
	var payload []articlePayload
	resp, err := c.articles.R().
		SetContext(ctx).
		SetQueryParam("since", since.UTC().Format(time.RFC3339)).
		SetResult(&payload).
		Get("/articles")
	if err != nil {
		return nil, fmt.Errorf("fetch articles: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch articles: %s", resp.Status())
	}

	out := make([]domain.Article, 0, len(payload))
	for _, p := range payload {
		out = append(out, domain.Article{
			ID:          p.ID,
			Title:       p.Title,
			Symbols:     p.ValidatedSymbols,
			PublishedAt: p.PublishedAt,
		})
	}
	return out, nil
}

type sentimentPayload struct {
	SentimentScore  float64 `json:"sentiment_score"`
	ConfidenceScore float64 `json:"confidence_score"`
	Prediction      string  `json:"prediction"`
}

// Scores fetches sentiment for the given article IDs. Articles the scorer
// does not know are simply absent from the result; the caller treats that
// as an input gap.
func (c *Client) Scores(ctx context.Context, articleIDs []string) (map[string]domain.Sentiment, error) {
	if len(articleIDs) == 0 {
		return map[string]domain.Sentiment{}, nil
	}

	var payload map[string]sentimentPayload
	resp, err := c.sentiment.R().
		SetContext(ctx).
		SetBody(map[string][]string{"article_ids": articleIDs}).
		SetResult(&payload).
		Post("/scores")
	if err != nil {
		return nil, fmt.Errorf("fetch sentiment scores: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch sentiment scores: %s", resp.Status())
	}

	out := make(map[string]domain.Sentiment, len(payload))
	for id, p := range payload {
		out[id] = domain.Sentiment{
			Score:      p.SentimentScore,
			Confidence: p.ConfidenceScore,
			Prediction: domain.Prediction(p.Prediction),
		}
	}
	return out, nil
}
