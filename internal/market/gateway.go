// Package market fetches quotes and news for tickers and resolves bare
// symbols to exchange listings.
package market

import (
	"context"
	"strings"
	"time"

	"github.com/trogers1052/stock-watch-agent/internal/models"
)

// Gateway fetches market data for a single ticker. Failures are returned as
// *models.FetchError so callers can isolate them per ticker.
type Gateway interface {
	FetchQuote(ctx context.Context, ticker string) (models.Quote, error)
	FetchNews(ctx context.Context, ticker string, since time.Time) ([]models.NewsArticle, error)
}

// materialKeywords mark headlines likely to move the price
var materialKeywords = []string{
	"earnings", "revenue", "guidance", "outlook", "forecast",
	"merger", "acquisition", "acquire", "buyout", "takeover",
	"upgrade", "downgrade", "price target",
	"lawsuit", "settlement", "investigation", "sec ", "fda",
	"bankruptcy", "default", "delisting",
	"dividend", "buyback", "repurchase", "split",
	"ceo", "resigns", "layoffs", "recall", "guidance cut",
}

// IsMaterial reports whether a headline or summary mentions a price-moving topic
func IsMaterial(headline, summary string) bool {
	text := strings.ToLower(headline + " " + summary + " ")
	for _, kw := range materialKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func fetchError(ticker, op string, err error) error {
	return &models.FetchError{Ticker: ticker, Op: op, Err: err}
}
