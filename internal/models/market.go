package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market identifiers used by the ticker resolver
const (
	MarketUS  = "US"
	MarketNSE = "NSE"
	MarketBSE = "BSE"
)

// Quote is a point-in-time price for a ticker
type Quote struct {
	Ticker        string          `json:"ticker"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	PercentChange decimal.Decimal `json:"percent_change"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewsArticle is a single news item for a ticker
type NewsArticle struct {
	ID          string    `json:"id"`
	Ticker      string    `json:"ticker"`
	Headline    string    `json:"headline"`
	Summary     string    `json:"summary,omitempty"`
	URL         string    `json:"url,omitempty"`
	Source      string    `json:"source,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Material    bool      `json:"material"`
}

// TickerCandidate is one possible listing for a user-supplied symbol
type TickerCandidate struct {
	Symbol string `json:"symbol"`
	Market string `json:"market"`
	Name   string `json:"name,omitempty"`
}
