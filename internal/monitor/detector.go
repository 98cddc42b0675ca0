package monitor

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-watch-agent/internal/dedup"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

// NewsLookbackFactor sizes the news window as a multiple of the check interval
const NewsLookbackFactor = 2

var hundred = decimal.NewFromInt(100)

// Observation is what one cycle fetched for a ticker. Either side may be
// missing when its fetch failed.
type Observation struct {
	Quote *models.Quote
	News  []models.NewsArticle
}

// PercentChange returns (current-last)/last*100. ok is false when there is no
// usable baseline.
func PercentChange(last decimal.NullDecimal, current decimal.Decimal) (decimal.Decimal, bool) {
	if !last.Valid || last.Decimal.IsZero() {
		return decimal.Zero, false
	}
	return current.Sub(last.Decimal).Div(last.Decimal).Mul(hundred), true
}

// NewsSince is the earliest publish time considered for settings s at now
func NewsSince(s models.Settings, now time.Time) time.Time {
	return now.Add(-NewsLookbackFactor * s.Interval())
}

// Detect compares an observation with the entry's last seen state and
// returns the candidate events, each carrying its fingerprint.
func Detect(pair models.WatchPair, obs Observation, now time.Time, priceWindow time.Duration) []models.Event {
	var events []models.Event
	entry := pair.Entry
	settings := pair.Settings

	if q := obs.Quote; q != nil {
		if pct, ok := PercentChange(entry.LastPrice, q.Price); ok && pct.Abs().GreaterThanOrEqual(settings.PriceChangeThresholdPercent) {
			quote := *q
			events = append(events, models.Event{
				UserID:        entry.UserID,
				Ticker:        entry.Ticker,
				Kind:          models.EventKindPriceMove,
				Fingerprint:   dedup.PriceFingerprint(entry.UserID, entry.Ticker, entry.LastPrice.Decimal, pct, settings.PriceChangeThresholdPercent, q.Timestamp, priceWindow),
				Quote:         &quote,
				PreviousPrice: entry.LastPrice.Decimal,
				ChangePercent: pct,
				DetectedAt:    now,
			})
		}
	}

	since := NewsSince(settings, now)
	for i := range obs.News {
		a := obs.News[i]
		if a.PublishedAt.Before(since) {
			continue
		}
		if !settings.NotifyAllNews && !a.Material {
			continue
		}
		events = append(events, models.Event{
			UserID:      entry.UserID,
			Ticker:      entry.Ticker,
			Kind:        models.EventKindNews,
			Fingerprint: dedup.NewsFingerprint(entry.UserID, entry.Ticker, a.ID),
			Article:     &a,
			DetectedAt:  now,
		})
	}

	return events
}
