package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	rmodels "github.com/polygon-io/client-go/rest/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

func TestIsMaterial(t *testing.T) {
	assert.True(t, IsMaterial("Apple beats earnings estimates", ""))
	assert.True(t, IsMaterial("Analyst note", "Morgan Stanley issues downgrade"))
	assert.False(t, IsMaterial("Five things to watch this week", "A roundup"))
}

func TestQuoteFromSnapshot(t *testing.T) {
	updated := time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)

	t.Run("uses last trade", func(t *testing.T) {
		s := rmodels.TickerSnapshot{
			TodaysChange:     1.5,
			TodaysChangePerc: 0.8,
			Updated:          rmodels.Nanos(updated),
		}
		s.LastTrade.Price = 187.25
		s.Day.Close = 186.0

		q, err := quoteFromSnapshot("aapl", s)
		require.NoError(t, err)
		assert.Equal(t, "AAPL", q.Ticker)
		assert.True(t, q.Price.Equal(decimal.RequireFromString("187.25")))
		assert.True(t, q.PercentChange.Equal(decimal.RequireFromString("0.8")))
		assert.Equal(t, updated, q.Timestamp)
	})

	t.Run("falls back to day close", func(t *testing.T) {
		s := rmodels.TickerSnapshot{Updated: rmodels.Nanos(updated)}
		s.Day.Close = 42.1

		q, err := quoteFromSnapshot("MSFT", s)
		require.NoError(t, err)
		assert.True(t, q.Price.Equal(decimal.RequireFromString("42.1")))
	})

	t.Run("empty snapshot is an error", func(t *testing.T) {
		_, err := quoteFromSnapshot("MSFT", rmodels.TickerSnapshot{})
		assert.Error(t, err)
	})
}

func TestArticleFromNews(t *testing.T) {
	published := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	n := rmodels.TickerNews{
		ID:           "abc123",
		Title:        "Tesla announces recall of 2M vehicles",
		Description:  "Regulators cited autopilot",
		ArticleURL:   "https://example.com/a",
		PublishedUtc: rmodels.Millis(published),
	}
	n.Publisher.Name = "Reuters"

	a := articleFromNews("tsla", n)
	assert.Equal(t, "abc123", a.ID)
	assert.Equal(t, "TSLA", a.Ticker)
	assert.Equal(t, "Reuters", a.Source)
	assert.Equal(t, published, a.PublishedAt)
	assert.True(t, a.Material)
}

// redirect sends every request to the test server regardless of host
type redirect struct {
	target *url.URL
}

func (r redirect) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = r.target.Scheme
	req.URL.Host = r.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func TestPolygonFetchQuoteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status":"ERROR","request_id":"x","error":"ticker not found"}`))
	}))
	defer server.Close()

	target, _ := url.Parse(server.URL)
	p := NewPolygon("test-key", &http.Client{Transport: redirect{target: target}, Timeout: 5 * time.Second})

	_, err := p.FetchQuote(context.Background(), "AAPL")
	var ferr *models.FetchError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, "AAPL", ferr.Ticker)
	assert.Equal(t, "quote", ferr.Op)
}

func TestYahooResolver(t *testing.T) {
	listings := map[string]string{
		"AAPL":        "Apple Inc.",
		"RELIANCE.NS": "Reliance Industries",
		"RELIANCE.BO": "Reliance Industries",
		"TCS.NS":      "Tata Consultancy",
	}
	var calls int32
	lookup := func(symbol string) (string, bool, error) {
		atomic.AddInt32(&calls, 1)
		name, ok := listings[symbol]
		return name, ok, nil
	}

	t.Run("single US listing", func(t *testing.T) {
		r := NewResolverWithLookup(lookup, time.Second)
		c, err := r.Resolve(context.Background(), "aapl")
		require.NoError(t, err)
		require.Len(t, c, 1)
		assert.Equal(t, models.TickerCandidate{Symbol: "AAPL", Market: models.MarketUS, Name: "Apple Inc."}, c[0])
	})

	t.Run("dual Indian listing returns both", func(t *testing.T) {
		r := NewResolverWithLookup(lookup, time.Second)
		c, err := r.Resolve(context.Background(), "RELIANCE")
		require.NoError(t, err)
		require.Len(t, c, 2)
		assert.Equal(t, "RELIANCE.NS", c[0].Symbol)
		assert.Equal(t, "RELIANCE.BO", c[1].Symbol)
	})

	t.Run("suffixed symbol probes only itself", func(t *testing.T) {
		r := NewResolverWithLookup(lookup, time.Second)
		atomic.StoreInt32(&calls, 0)
		c, err := r.Resolve(context.Background(), "TCS.NS")
		require.NoError(t, err)
		require.Len(t, c, 1)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("results are cached", func(t *testing.T) {
		r := NewResolverWithLookup(lookup, time.Second)
		_, err := r.Resolve(context.Background(), "AAPL")
		require.NoError(t, err)
		atomic.StoreInt32(&calls, 0)
		_, err = r.Resolve(context.Background(), "AAPL")
		require.NoError(t, err)
		assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	})

	t.Run("cache expires", func(t *testing.T) {
		r := NewResolverWithLookup(lookup, time.Second)
		now := time.Now()
		r.now = func() time.Time { return now }
		_, err := r.Resolve(context.Background(), "AAPL")
		require.NoError(t, err)

		now = now.Add(DefaultResolveCacheTTL)
		atomic.StoreInt32(&calls, 0)
		_, err = r.Resolve(context.Background(), "AAPL")
		require.NoError(t, err)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("misses are not cached", func(t *testing.T) {
		available := false
		r := NewResolverWithLookup(func(symbol string) (string, bool, error) {
			if available && symbol == "NEWCO" {
				return "NewCo Holdings", true, nil
			}
			return "", false, nil
		}, time.Second)

		c, err := r.Resolve(context.Background(), "NEWCO")
		require.NoError(t, err)
		assert.Empty(t, c)

		available = true
		c, err = r.Resolve(context.Background(), "NEWCO")
		require.NoError(t, err)
		require.Len(t, c, 1)
		assert.Equal(t, "NewCo Holdings", c[0].Name)
	})

	t.Run("lookup error surfaces", func(t *testing.T) {
		r := NewResolverWithLookup(func(string) (string, bool, error) {
			return "", false, errors.New("rate limited")
		}, time.Second)
		_, err := r.Resolve(context.Background(), "AAPL")
		assert.Error(t, err)
	})

	t.Run("slow lookup times out", func(t *testing.T) {
		r := NewResolverWithLookup(func(string) (string, bool, error) {
			time.Sleep(200 * time.Millisecond)
			return "", false, nil
		}, 20*time.Millisecond)
		_, err := r.Resolve(context.Background(), "SLOW")
		assert.Error(t, err)
	})
}
