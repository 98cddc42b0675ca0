package monitor

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func pairWith(last string, threshold string, notifyAll bool) models.WatchPair {
	p := models.WatchPair{
		Entry: models.WatchlistEntry{UserID: 1, Ticker: "AAPL", Enabled: true},
		Settings: models.Settings{
			CheckIntervalMinutes:        15,
			PriceChangeThresholdPercent: d(threshold),
			NotifyAllNews:               notifyAll,
		},
	}
	if last != "" {
		p.Entry.LastPrice = decimal.NewNullDecimal(d(last))
	}
	return p
}

func quoteAt(price string, at time.Time) *models.Quote {
	return &models.Quote{Ticker: "AAPL", Price: d(price), Timestamp: at}
}

func TestDetectPriceMove(t *testing.T) {
	now := time.Date(2024, 3, 1, 15, 10, 0, 0, time.UTC)

	t.Run("0.6 percent crosses a 0.5 threshold", func(t *testing.T) {
		events := Detect(pairWith("100", "0.5", true), Observation{Quote: quoteAt("100.6", now)}, now, time.Hour)
		require.Len(t, events, 1)
		ev := events[0]
		assert.Equal(t, models.EventKindPriceMove, ev.Kind)
		assert.True(t, ev.ChangePercent.Equal(d("0.6")))
		assert.True(t, ev.PreviousPrice.Equal(d("100")))
		assert.NotEmpty(t, ev.Fingerprint)
	})

	t.Run("0.3 percent does not", func(t *testing.T) {
		events := Detect(pairWith("100", "0.5", true), Observation{Quote: quoteAt("100.3", now)}, now, time.Hour)
		assert.Empty(t, events)
	})

	t.Run("drops count by magnitude", func(t *testing.T) {
		events := Detect(pairWith("100", "0.5", true), Observation{Quote: quoteAt("99.4", now)}, now, time.Hour)
		require.Len(t, events, 1)
		assert.True(t, events[0].ChangePercent.Equal(d("-0.6")))
	})

	t.Run("exact threshold triggers", func(t *testing.T) {
		events := Detect(pairWith("100", "0.5", true), Observation{Quote: quoteAt("100.5", now)}, now, time.Hour)
		assert.Len(t, events, 1)
	})

	t.Run("first observation only seeds", func(t *testing.T) {
		events := Detect(pairWith("", "0.5", true), Observation{Quote: quoteAt("100", now)}, now, time.Hour)
		assert.Empty(t, events)
	})

	t.Run("zero baseline is ignored", func(t *testing.T) {
		events := Detect(pairWith("0", "0.5", true), Observation{Quote: quoteAt("100", now)}, now, time.Hour)
		assert.Empty(t, events)
	})

	t.Run("same bucket in same window shares a fingerprint", func(t *testing.T) {
		a := Detect(pairWith("100", "0.5", true), Observation{Quote: quoteAt("100.6", now)}, now, time.Hour)
		b := Detect(pairWith("100", "0.5", true), Observation{Quote: quoteAt("100.9", now.Add(20*time.Minute))}, now, time.Hour)
		require.Len(t, a, 1)
		require.Len(t, b, 1)
		assert.Equal(t, a[0].Fingerprint, b[0].Fingerprint)
	})

	t.Run("opposite direction differs", func(t *testing.T) {
		up := Detect(pairWith("100", "0.5", true), Observation{Quote: quoteAt("100.6", now)}, now, time.Hour)
		down := Detect(pairWith("100", "0.5", true), Observation{Quote: quoteAt("99.4", now)}, now, time.Hour)
		assert.NotEqual(t, up[0].Fingerprint, down[0].Fingerprint)
	})
}

func TestDetectNews(t *testing.T) {
	now := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	articles := []models.NewsArticle{
		{ID: "fresh-material", PublishedAt: now.Add(-10 * time.Minute), Material: true},
		{ID: "fresh-minor", PublishedAt: now.Add(-20 * time.Minute)},
		{ID: "stale", PublishedAt: now.Add(-31 * time.Minute), Material: true},
	}

	t.Run("notify all news includes minor articles in the lookback", func(t *testing.T) {
		events := Detect(pairWith("", "0.5", true), Observation{News: articles}, now, time.Hour)
		require.Len(t, events, 2)
		assert.Equal(t, "fresh-material", events[0].Article.ID)
		assert.Equal(t, "fresh-minor", events[1].Article.ID)
	})

	t.Run("material only", func(t *testing.T) {
		events := Detect(pairWith("", "0.5", false), Observation{News: articles}, now, time.Hour)
		require.Len(t, events, 1)
		assert.Equal(t, models.EventKindNews, events[0].Kind)
		assert.Equal(t, "fresh-material", events[0].Article.ID)
	})

	t.Run("article fingerprint is stable across cycles", func(t *testing.T) {
		a := Detect(pairWith("", "0.5", false), Observation{News: articles[:1]}, now, time.Hour)
		b := Detect(pairWith("", "0.5", false), Observation{News: articles[:1]}, now.Add(5*time.Minute), time.Hour)
		assert.Equal(t, a[0].Fingerprint, b[0].Fingerprint)
	})
}
