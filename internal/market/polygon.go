package market

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	polygonrest "github.com/polygon-io/client-go/rest"
	rmodels "github.com/polygon-io/client-go/rest/models"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

const maxNewsPerFetch = 50

// Polygon is a Gateway backed by the Polygon REST API
type Polygon struct {
	rest *polygonrest.Client
}

// NewPolygon creates a Polygon gateway using httpClient for transport
func NewPolygon(apiKey string, httpClient *http.Client) *Polygon {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Polygon{rest: polygonrest.NewWithClient(apiKey, httpClient)}
}

// FetchQuote returns the latest snapshot price for ticker
func (p *Polygon) FetchQuote(ctx context.Context, ticker string) (models.Quote, error) {
	params := &rmodels.GetTickerSnapshotParams{
		Ticker:     ticker,
		Locale:     rmodels.US,
		MarketType: rmodels.Stocks,
	}

	res, err := p.rest.GetTickerSnapshot(ctx, params)
	if err != nil {
		return models.Quote{}, fetchError(ticker, "quote", fmt.Errorf("failed to get snapshot: %w", err))
	}

	q, err := quoteFromSnapshot(ticker, res.Snapshot)
	if err != nil {
		return models.Quote{}, fetchError(ticker, "quote", err)
	}
	return q, nil
}

// FetchNews returns articles for ticker published at or after since, newest first
func (p *Polygon) FetchNews(ctx context.Context, ticker string, since time.Time) ([]models.NewsArticle, error) {
	params := rmodels.ListTickerNewsParams{}.
		WithTicker(rmodels.EQ, ticker).
		WithPublishedUTC(rmodels.GTE, rmodels.Millis(since)).
		WithSort(rmodels.PublishedUTC).
		WithOrder(rmodels.Desc).
		WithLimit(maxNewsPerFetch)

	var articles []models.NewsArticle
	iter := p.rest.ListTickerNews(ctx, params)
	for iter.Next() {
		articles = append(articles, articleFromNews(ticker, iter.Item()))
		if len(articles) >= maxNewsPerFetch {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fetchError(ticker, "news", fmt.Errorf("failed to list news: %w", err))
	}
	return articles, nil
}

// quoteFromSnapshot prefers the last trade and falls back to the day close
// outside market hours
func quoteFromSnapshot(ticker string, s rmodels.TickerSnapshot) (models.Quote, error) {
	price := s.LastTrade.Price
	if price == 0 {
		price = s.Day.Close
	}
	if price == 0 {
		price = s.PrevDay.Close
	}
	if price <= 0 {
		return models.Quote{}, fmt.Errorf("no price in snapshot")
	}

	ts := time.Time(s.Updated)
	if ts.IsZero() || ts.Unix() <= 0 {
		ts = time.Now()
	}

	return models.Quote{
		Ticker:        strings.ToUpper(ticker),
		Price:         decimal.NewFromFloat(price),
		Change:        decimal.NewFromFloat(s.TodaysChange),
		PercentChange: decimal.NewFromFloat(s.TodaysChangePerc),
		Timestamp:     ts.UTC(),
	}, nil
}

func articleFromNews(ticker string, n rmodels.TickerNews) models.NewsArticle {
	return models.NewsArticle{
		ID:          n.ID,
		Ticker:      strings.ToUpper(ticker),
		Headline:    n.Title,
		Summary:     n.Description,
		URL:         n.ArticleURL,
		Source:      n.Publisher.Name,
		PublishedAt: time.Time(n.PublishedUTC).UTC(),
		Material:    IsMaterial(n.Title, n.Description),
	}
}
