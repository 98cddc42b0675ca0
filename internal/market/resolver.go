package market

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/piquette/finance-go/quote"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

// DefaultResolveCacheTTL is how long a resolution is reused
const DefaultResolveCacheTTL = 24 * time.Hour

// Resolver maps a user-supplied symbol to its exchange listings
type Resolver interface {
	Resolve(ctx context.Context, ticker string) ([]models.TickerCandidate, error)
}

// LookupFunc returns the listing name for symbol, or ok=false when the symbol
// does not exist
type LookupFunc func(symbol string) (name string, ok bool, err error)

type cachedResolution struct {
	candidates []models.TickerCandidate
	at         time.Time
}

// YahooResolver checks US, NSE and BSE listings through Yahoo Finance
type YahooResolver struct {
	lookup  LookupFunc
	timeout time.Duration
	ttl     time.Duration
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]cachedResolution
}

// NewYahooResolver creates a resolver that queries Yahoo Finance
func NewYahooResolver(timeout time.Duration) *YahooResolver {
	return NewResolverWithLookup(yahooLookup, timeout)
}

// NewResolverWithLookup creates a resolver around a custom symbol lookup
func NewResolverWithLookup(lookup LookupFunc, timeout time.Duration) *YahooResolver {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &YahooResolver{
		lookup:  lookup,
		timeout: timeout,
		ttl:     DefaultResolveCacheTTL,
		now:     time.Now,
		cache:   make(map[string]cachedResolution),
	}
}

// Resolve returns every listing of ticker. A symbol that already carries an
// exchange suffix resolves only to itself.
func (r *YahooResolver) Resolve(ctx context.Context, ticker string) ([]models.TickerCandidate, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	if c, ok := r.cached(ticker); ok {
		return c, nil
	}

	var probes []models.TickerCandidate
	switch {
	case strings.HasSuffix(ticker, ".NS"):
		probes = []models.TickerCandidate{{Symbol: ticker, Market: models.MarketNSE}}
	case strings.HasSuffix(ticker, ".BO"):
		probes = []models.TickerCandidate{{Symbol: ticker, Market: models.MarketBSE}}
	default:
		probes = []models.TickerCandidate{
			{Symbol: ticker, Market: models.MarketUS},
			{Symbol: ticker + ".NS", Market: models.MarketNSE},
			{Symbol: ticker + ".BO", Market: models.MarketBSE},
		}
	}

	var found []models.TickerCandidate
	for _, p := range probes {
		name, ok, err := r.probe(ctx, p.Symbol)
		if err != nil {
			return nil, err
		}
		if ok {
			p.Name = name
			found = append(found, p)
		}
	}

	// Misses are not cached, so a symbol Yahoo did not return is probed again
	// on the next call.
	if len(found) == 0 {
		log.Warn().Str("ticker", ticker).Msg("Ticker not found in US, NSE or BSE")
		return nil, nil
	}

	r.mu.Lock()
	r.cache[ticker] = cachedResolution{candidates: found, at: r.now()}
	r.mu.Unlock()

	return found, nil
}

func (r *YahooResolver) cached(ticker string) ([]models.TickerCandidate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cache[ticker]
	if !ok || r.now().Sub(c.at) >= r.ttl {
		return nil, false
	}
	return append([]models.TickerCandidate(nil), c.candidates...), true
}

// probe runs the blocking lookup so the caller's context still bounds it
func (r *YahooResolver) probe(ctx context.Context, symbol string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		name string
		ok   bool
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		name, ok, err := r.lookup(symbol)
		resultCh <- result{name, ok, err}
	}()

	select {
	case <-ctx.Done():
		return "", false, errors.Wrap(ctx.Err(), "request to Yahoo Finance timed out")
	case res := <-resultCh:
		if res.err != nil {
			return "", false, errors.Wrapf(res.err, "failed to resolve %s", symbol)
		}
		return res.name, res.ok, nil
	}
}

func yahooLookup(symbol string) (string, bool, error) {
	q, err := quote.Get(symbol)
	if err != nil {
		return "", false, errors.Wrap(err, "failed to get quote from Yahoo Finance")
	}
	if q == nil || (q.Symbol == "" && q.ShortName == "") {
		return "", false, nil
	}
	name := q.ShortName
	if name == "" {
		name = q.LongName
	}
	return name, true, nil
}
