// Package monitor runs the periodic watchlist check: it fetches market data
// for every due user, detects price moves and news, and hands new events to
// the notifier.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/trogers1052/stock-watch-agent/internal/dedup"
	"github.com/trogers1052/stock-watch-agent/internal/market"
	"github.com/trogers1052/stock-watch-agent/internal/models"
	"github.com/trogers1052/stock-watch-agent/internal/store"
)

var (
	// ErrCycleRunning is returned by RunNow while another cycle is in flight
	ErrCycleRunning = errors.New("monitoring cycle already running")
	// ErrStopping is returned once Stop has been called
	ErrStopping = errors.New("scheduler is stopping")
)

// Notifier delivers one event. A non-nil error means the event was dropped.
type Notifier interface {
	Notify(ctx context.Context, ev models.Event) error
}

// Options tune the scheduler
type Options struct {
	Resolution           time.Duration
	MaxConcurrentFetches int
	CycleTimeout         time.Duration
	ShutdownTimeout      time.Duration
	PriceWindow          time.Duration
}

// Scheduler drives monitoring cycles from a cron tick
type Scheduler struct {
	store    store.Store
	fps      dedup.Store
	gateway  market.Gateway
	notifier Notifier
	opts     Options

	cron   *cron.Cron
	now    func() time.Time
	stats  statsRecorder
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	running  bool
	stopping bool
	inflight sync.WaitGroup
	lastRun  map[int64]time.Time
}

// NewScheduler creates a scheduler. Call Start to begin ticking.
func NewScheduler(st store.Store, fps dedup.Store, gw market.Gateway, n Notifier, opts Options) *Scheduler {
	if opts.Resolution <= 0 {
		opts.Resolution = time.Minute
	}
	if opts.MaxConcurrentFetches < 1 {
		opts.MaxConcurrentFetches = 4
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = 5 * time.Minute
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}
	if opts.PriceWindow <= 0 {
		opts.PriceWindow = time.Hour
	}

	logger := cronLogger{}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		store:    st,
		fps:      fps,
		gateway:  gw,
		notifier: n,
		opts:     opts,
		cron:     cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger))),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		lastRun:  make(map[int64]time.Time),
	}
}

// Start schedules the tick every Resolution
func (s *Scheduler) Start() error {
	spec := fmt.Sprintf("@every %s", s.opts.Resolution)
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("failed to schedule monitoring tick: %w", err)
	}
	s.cron.Start()
	log.Info().Dur("resolution", s.opts.Resolution).Int("max_fetches", s.opts.MaxConcurrentFetches).Msg("Scheduler started")
	return nil
}

// RunNow runs one cycle immediately on the caller's goroutine
func (s *Scheduler) RunNow(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	return s.runCycle(ctx)
}

// Stop prevents new ticks and waits for the running cycle. If it does not
// finish within ShutdownTimeout its context is cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	<-s.cron.Stop().Done()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("Scheduler stopped")
	case <-time.After(s.opts.ShutdownTimeout):
		log.Warn().Dur("timeout", s.opts.ShutdownTimeout).Msg("Cycle did not finish before shutdown timeout, cancelling")
		s.cancel()
		<-done
	}
	s.cancel()
}

// Stats returns a snapshot of the scheduler counters
func (s *Scheduler) Stats() Stats {
	return s.stats.snapshot()
}

func (s *Scheduler) tick() {
	if err := s.begin(); err != nil {
		if errors.Is(err, ErrCycleRunning) {
			s.stats.skipped()
			log.Warn().Msg("Previous cycle still running, skipping tick")
		}
		return
	}
	defer s.end()

	if err := s.runCycle(s.ctx); err != nil {
		log.Error().Err(err).Msg("Monitoring cycle aborted")
	}
}

// begin claims the single cycle slot
func (s *Scheduler) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		return ErrStopping
	}
	if s.running {
		return ErrCycleRunning
	}
	s.running = true
	s.inflight.Add(1)
	return nil
}

func (s *Scheduler) end() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.inflight.Done()
}

// due reports whether a user with interval has waited long enough. Half a
// resolution of slack keeps a tick that fires slightly early from slipping a
// whole resolution.
func (s *Scheduler) due(userID int64, interval time.Duration, now time.Time) bool {
	last, ok := s.lastRun[userID]
	if !ok {
		return true
	}
	return now.Sub(last) >= interval-s.opts.Resolution/2
}

func (s *Scheduler) runCycle(parent context.Context) (err error) {
	ctx, cancel := context.WithTimeout(parent, s.opts.CycleTimeout)
	defer cancel()

	start := s.now()
	var pairs []models.WatchPair
	defer func() {
		s.stats.cycleDone(start, s.now().Sub(start), len(pairs), err)
	}()

	all, err := s.store.EnabledPairs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load watchlist: %w", err)
	}

	pairs, users, jobs := s.selectDue(all, start)
	if len(pairs) == 0 {
		log.Debug().Msg("No users due this tick")
		return nil
	}

	log.Info().Int("pairs", len(pairs)).Int("tickers", len(jobs)).Msg("Starting monitoring cycle")

	observations := fetchAll(ctx, s.gateway, jobs, s.opts.MaxConcurrentFetches, func(error) {
		s.stats.fetchFailed()
	})

	for _, pair := range pairs {
		if err := s.processPair(ctx, pair, observations[pair.Entry.Ticker]); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("monitoring cycle did not finish: %w", err)
	}
	s.markRun(users, start)

	log.Info().Int("pairs", len(pairs)).Dur("duration", s.now().Sub(start)).Msg("Monitoring cycle complete")
	return nil
}

// selectDue keeps the pairs of users whose interval has elapsed and builds
// one fetch job per distinct ticker
func (s *Scheduler) selectDue(all []models.WatchPair, now time.Time) ([]models.WatchPair, []int64, []fetchJob) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dueUsers := make(map[int64]bool)
	var pairs []models.WatchPair
	var users []int64
	for _, p := range all {
		isDue, seen := dueUsers[p.Entry.UserID]
		if !seen {
			isDue = s.due(p.Entry.UserID, p.Settings.Interval(), now)
			dueUsers[p.Entry.UserID] = isDue
			if isDue {
				users = append(users, p.Entry.UserID)
			}
		}
		if isDue {
			pairs = append(pairs, p)
		}
	}

	since := make(map[string]time.Time)
	for _, p := range pairs {
		t := NewsSince(p.Settings, now)
		if cur, ok := since[p.Entry.Ticker]; !ok || t.Before(cur) {
			since[p.Entry.Ticker] = t
		}
	}
	jobs := make([]fetchJob, 0, len(since))
	for ticker, t := range since {
		jobs = append(jobs, fetchJob{ticker: ticker, since: t})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ticker < jobs[j].ticker })

	return pairs, users, jobs
}

// markRun records a completed cycle for users. Failed cycles are not
// recorded so those users are retried at the next tick.
func (s *Scheduler) markRun(users []int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range users {
		s.lastRun[id] = at
	}
}

// processPair delivers new events for one pair and records what was seen.
// Only storage failures are returned.
func (s *Scheduler) processPair(ctx context.Context, pair models.WatchPair, obs Observation) error {
	entry := pair.Entry
	events := Detect(pair, obs, s.now(), s.opts.PriceWindow)

	var lastFingerprint string
	for _, ev := range events {
		accepted, err := s.fps.CheckAndInsert(ctx, ev.Fingerprint, ev.DetectedAt)
		if err != nil {
			return err
		}
		if !accepted {
			log.Debug().Int64("user", ev.UserID).Str("ticker", ev.Ticker).Str("fingerprint", ev.Fingerprint).Msg("Duplicate event suppressed")
			continue
		}

		if err := s.notifier.Notify(ctx, ev); err != nil {
			log.Error().Err(err).Int64("user", ev.UserID).Str("ticker", ev.Ticker).Str("kind", ev.Kind).Msg("Notification dropped")
			continue
		}
		s.stats.sent()
		lastFingerprint = ev.Fingerprint
	}

	if obs.Quote == nil {
		return nil
	}
	if err := s.store.RecordObservation(ctx, entry.UserID, entry.Ticker, obs.Quote.Price, lastFingerprint); err != nil {
		return err
	}
	return nil
}

// cronLogger routes cron's logs through zerolog
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
