package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/trogers1052/stock-watch-agent/internal/market"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

type fetchJob struct {
	ticker string
	since  time.Time
}

// fetchAll fetches quote and news for every job with at most workers
// concurrent tickers. Failures leave the corresponding side nil and are
// reported through onFailure.
func fetchAll(ctx context.Context, gw market.Gateway, jobs []fetchJob, workers int, onFailure func(error)) map[string]Observation {
	if workers < 1 {
		workers = 1
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	results := make(map[string]Observation, len(jobs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	jobCh := make(chan fetchJob)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				obs := fetchOne(ctx, gw, job, onFailure)
				mu.Lock()
				results[job.ticker] = obs
				mu.Unlock()
			}
		}()
	}

	for _, job := range jobs {
		select {
		case jobCh <- job:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobCh)
	wg.Wait()

	return results
}

func fetchOne(ctx context.Context, gw market.Gateway, job fetchJob, onFailure func(error)) Observation {
	var obs Observation

	q, err := gw.FetchQuote(ctx, job.ticker)
	if err != nil {
		reportFetch(job.ticker, err, onFailure)
	} else {
		obs.Quote = &q
	}

	news, err := gw.FetchNews(ctx, job.ticker, job.since)
	if err != nil {
		reportFetch(job.ticker, err, onFailure)
	} else {
		obs.News = news
	}
	return obs
}

func reportFetch(ticker string, err error, onFailure func(error)) {
	var ferr *models.FetchError
	if !errors.As(err, &ferr) {
		err = &models.FetchError{Ticker: ticker, Op: "fetch", Err: err}
	}
	log.Warn().Err(err).Str("ticker", ticker).Msg("Fetch failed, skipping ticker this cycle")
	if onFailure != nil {
		onFailure(err)
	}
}
