package commands

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/trogers1052/stock-watch-agent/internal/analysis"
	"github.com/trogers1052/stock-watch-agent/internal/market"
	"github.com/trogers1052/stock-watch-agent/internal/models"
	"github.com/trogers1052/stock-watch-agent/internal/monitor"
	"github.com/trogers1052/stock-watch-agent/internal/store"
)

// DefaultDisambiguationTTL is how long a ticker choice stays open
const DefaultDisambiguationTTL = 2 * time.Minute

// analysisNewsLookback bounds the headlines handed to the analyst
const analysisNewsLookback = 7 * 24 * time.Hour

const internalErrorReply = "⚠️ Something went wrong on our side. Please try again shortly."

// StatsProvider exposes scheduler counters for /status
type StatsProvider interface {
	Stats() monitor.Stats
}

// EventPublisher receives watchlist changes for the event bus
type EventPublisher interface {
	PublishWatchlistEvent(ctx context.Context, ev models.BusEvent) error
}

// Dispatcher applies validated commands to the store and collaborators
type Dispatcher struct {
	store     store.Store
	gateway   market.Gateway
	resolver  market.Resolver
	analyst   analysis.Analyst
	stats     StatsProvider
	publisher EventPublisher
	ttl       time.Duration
	now       func() time.Time
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithResolver enables cross-market ticker resolution
func WithResolver(r market.Resolver) Option {
	return func(d *Dispatcher) { d.resolver = r }
}

// WithAnalyst enables /analyse, /ask and the AI part of /compare
func WithAnalyst(a analysis.Analyst) Option {
	return func(d *Dispatcher) { d.analyst = a }
}

// WithStats reports scheduler counters in /status
func WithStats(s StatsProvider) Option {
	return func(d *Dispatcher) { d.stats = s }
}

// WithPublisher publishes watchlist changes
func WithPublisher(p EventPublisher) Option {
	return func(d *Dispatcher) { d.publisher = p }
}

// WithDisambiguationTTL overrides how long a pending ticker choice lives
func WithDisambiguationTTL(ttl time.Duration) Option {
	return func(d *Dispatcher) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// NewDispatcher creates a dispatcher over st and gw
func NewDispatcher(st store.Store, gw market.Gateway, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:   st,
		gateway: gw,
		analyst: analysis.NewService(nil),
		ttl:     DefaultDisambiguationTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle processes one inbound message and returns the reply text. The
// error is non-nil only for storage failures; the reply is then a generic
// apology.
func (d *Dispatcher) Handle(ctx context.Context, msg models.InboundMessage) (string, error) {
	reply, err := d.handle(ctx, msg)
	if err == nil {
		return reply, nil
	}

	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return "❌ " + html.EscapeString(verr.Error()), nil
	}

	log.Error().Err(err).Int64("user", msg.ChatID).Str("text", msg.Text).Msg("Command failed")
	return internalErrorReply, err
}

func (d *Dispatcher) handle(ctx context.Context, msg models.InboundMessage) (string, error) {
	chatID := msg.ChatID
	if err := d.store.EnsureUser(ctx, chatID); err != nil {
		return "", err
	}

	session, err := d.store.TakeSession(ctx, chatID, d.now())
	if err != nil {
		return "", err
	}
	if session != nil {
		if choice, ok := pickCandidate(session.Candidates, msg.Text); ok {
			log.Debug().Int64("user", chatID).Str("verb", session.Verb).Str("ticker", choice.Symbol).Msg("Disambiguation resolved")
			return d.applyResolved(ctx, chatID, session.Verb, choice.Symbol, session.Args)
		}
		log.Debug().Int64("user", chatID).Msg("Reply did not match pending choice, dropping session")
	}

	cmd, ok := Parse(msg.Text)
	if !ok {
		return "Send /help to see what I can do.", nil
	}

	req, err := Validate(cmd)
	if err != nil {
		return "", err
	}
	return d.apply(ctx, chatID, req)
}

func (d *Dispatcher) apply(ctx context.Context, chatID int64, req Request) (string, error) {
	switch r := req.(type) {
	case TickerRequest:
		if r.Verb == VerbRemove {
			return d.remove(ctx, chatID, r.Ticker)
		}
		return d.resolveThen(ctx, chatID, r.Verb, r.Ticker, nil)
	case AskRequest:
		return d.resolveThen(ctx, chatID, VerbAsk, r.Ticker, []string{r.Question})
	case IntervalRequest:
		return d.setInterval(ctx, chatID, r.Minutes)
	case CompareRequest:
		return d.compare(ctx, r.First, r.Second)
	case SimpleRequest:
		switch r.Verb {
		case VerbList:
			return d.list(ctx, chatID)
		case VerbStatus:
			return d.status(ctx, chatID)
		case VerbPing:
			return "🏓 pong", nil
		}
	}
	return HelpText(), nil
}

// resolveThen looks the ticker up across markets. Several listings open a
// pending choice; one listing is used directly; no listing or a resolver
// failure falls back to the ticker as typed.
func (d *Dispatcher) resolveThen(ctx context.Context, chatID int64, verb, ticker string, extra []string) (string, error) {
	if d.resolver == nil {
		return d.applyResolved(ctx, chatID, verb, ticker, extra)
	}

	candidates, err := d.resolver.Resolve(ctx, ticker)
	if err != nil {
		log.Warn().Err(err).Str("ticker", ticker).Msg("Ticker resolution failed, using symbol as typed")
		return d.applyResolved(ctx, chatID, verb, ticker, extra)
	}

	switch len(candidates) {
	case 0:
		return d.applyResolved(ctx, chatID, verb, ticker, extra)
	case 1:
		return d.applyResolved(ctx, chatID, verb, candidates[0].Symbol, extra)
	}

	session := models.PendingSession{
		ChatID:     chatID,
		Verb:       verb,
		Args:       extra,
		Candidates: candidates,
		ExpiresAt:  d.now().Add(d.ttl),
	}
	if err := d.store.SaveSession(ctx, session); err != nil {
		return "", err
	}
	return choiceText(ticker, candidates), nil
}

func (d *Dispatcher) applyResolved(ctx context.Context, chatID int64, verb, ticker string, extra []string) (string, error) {
	switch verb {
	case VerbAdd:
		return d.add(ctx, chatID, ticker)
	case VerbAnalyse:
		return d.analyse(ctx, ticker)
	case VerbAsk:
		question := strings.Join(extra, " ")
		return d.ask(ctx, ticker, question)
	}
	return HelpText(), nil
}

func (d *Dispatcher) add(ctx context.Context, chatID int64, ticker string) (string, error) {
	result, err := d.store.AddTicker(ctx, chatID, ticker)
	if err != nil {
		return "", err
	}

	t := html.EscapeString(ticker)
	switch result {
	case models.AddResultAdded:
		d.publish(ctx, models.EventTypeTickerAdded, chatID, ticker, 0)
		return fmt.Sprintf("✅ Added <b>%s</b> to your watchlist.", t), nil
	case models.AddResultReenabled:
		d.publish(ctx, models.EventTypeTickerAdded, chatID, ticker, 0)
		return fmt.Sprintf("✅ Resumed watching <b>%s</b>.", t), nil
	}
	return fmt.Sprintf("ℹ️ <b>%s</b> is already on your watchlist.", t), nil
}

func (d *Dispatcher) remove(ctx context.Context, chatID int64, ticker string) (string, error) {
	removed, err := d.store.RemoveTicker(ctx, chatID, ticker)
	if err != nil {
		return "", err
	}

	t := html.EscapeString(ticker)
	if !removed {
		return fmt.Sprintf("ℹ️ <b>%s</b> is not on your watchlist.", t), nil
	}
	d.publish(ctx, models.EventTypeTickerRemoved, chatID, ticker, 0)
	return fmt.Sprintf("🗑 Removed <b>%s</b> from your watchlist.", t), nil
}

func (d *Dispatcher) list(ctx context.Context, chatID int64) (string, error) {
	entries, err := d.store.ListWatchlist(ctx, chatID)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "Your watchlist is empty. Add a ticker with /add TICKER.", nil
	}

	var b strings.Builder
	b.WriteString("<b>Your watchlist</b>\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "\n%d. <b>%s</b>", i+1, html.EscapeString(e.Ticker))
		if e.LastPrice.Valid {
			fmt.Fprintf(&b, " %s", e.LastPrice.Decimal.StringFixed(2))
		}
		if !e.Enabled {
			b.WriteString(" (paused)")
		}
	}
	return b.String(), nil
}

func (d *Dispatcher) setInterval(ctx context.Context, chatID int64, minutes int) (string, error) {
	if err := d.store.SetUserInterval(ctx, chatID, minutes); err != nil {
		return "", err
	}
	d.publish(ctx, models.EventTypeIntervalChanged, chatID, "", minutes)
	return fmt.Sprintf("⏱ Your watchlist will be checked every %d minute%s.", minutes, plural(minutes)), nil
}

func (d *Dispatcher) status(ctx context.Context, chatID int64) (string, error) {
	users, err := d.store.CountUsers(ctx)
	if err != nil {
		return "", err
	}
	entries, err := d.store.ListWatchlist(ctx, chatID)
	if err != nil {
		return "", err
	}
	settings, err := d.store.EffectiveSettings(ctx, chatID)
	if err != nil {
		return "", err
	}

	active := 0
	for _, e := range entries {
		if e.Enabled {
			active++
		}
	}

	var b strings.Builder
	b.WriteString("<b>Status</b>\n")
	fmt.Fprintf(&b, "\nUsers: %d", users)
	fmt.Fprintf(&b, "\nYour tickers: %d (%d active)", len(entries), active)
	fmt.Fprintf(&b, "\nCheck interval: %d min", settings.CheckIntervalMinutes)
	fmt.Fprintf(&b, "\nPrice threshold: %s%%", settings.PriceChangeThresholdPercent.String())
	news := "material only"
	if settings.NotifyAllNews {
		news = "all"
	}
	fmt.Fprintf(&b, "\nNews alerts: %s", news)

	if d.stats != nil {
		s := d.stats.Stats()
		fmt.Fprintf(&b, "\n\nCycles: %d (skipped ticks: %d)", s.Cycles, s.SkippedTicks)
		fmt.Fprintf(&b, "\nAlerts sent: %d", s.NotificationsSent)
		if !s.LastCycleStart.IsZero() {
			fmt.Fprintf(&b, "\nLast cycle: %s UTC, took %s", s.LastCycleStart.UTC().Format("15:04:05"), s.LastCycleDuration.Round(time.Millisecond))
		}
	}
	return b.String(), nil
}

// PartialResultError reports a comparison where only some quotes arrived
type PartialResultError struct {
	Failed map[string]error
}

func (e *PartialResultError) Error() string {
	tickers := make([]string, 0, len(e.Failed))
	for t := range e.Failed {
		tickers = append(tickers, t)
	}
	return fmt.Sprintf("could not fetch %s", strings.Join(tickers, ", "))
}

// FetchPair fetches two quotes concurrently. When either fails the other is
// still returned alongside a *PartialResultError.
func FetchPair(ctx context.Context, gw market.Gateway, first, second string) (*models.Quote, *models.Quote, error) {
	tickers := [2]string{first, second}
	var quotes [2]*models.Quote
	var errs [2]error

	var wg sync.WaitGroup
	for i := range tickers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q, err := gw.FetchQuote(ctx, tickers[i])
			if err != nil {
				errs[i] = err
				return
			}
			quotes[i] = &q
		}(i)
	}
	wg.Wait()

	failed := make(map[string]error)
	for i, err := range errs {
		if err != nil {
			failed[tickers[i]] = err
		}
	}
	if len(failed) > 0 {
		return quotes[0], quotes[1], &PartialResultError{Failed: failed}
	}
	return quotes[0], quotes[1], nil
}

func (d *Dispatcher) compare(ctx context.Context, first, second string) (string, error) {
	qa, qb, err := FetchPair(ctx, d.gateway, first, second)

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s vs %s</b>\n", html.EscapeString(first), html.EscapeString(second))
	for _, q := range []*models.Quote{qa, qb} {
		if q != nil {
			b.WriteString("\n" + quoteLine(*q))
		}
	}

	if err != nil {
		log.Warn().Err(err).Str("first", first).Str("second", second).Msg("Partial comparison")
		fmt.Fprintf(&b, "\n\n⚠️ Partial result: %s", html.EscapeString(err.Error()))
		return b.String(), nil
	}

	text, aerr := d.analyst.Compare(ctx, analysis.Input{Quote: *qa}, analysis.Input{Quote: *qb})
	if aerr == nil {
		b.WriteString("\n\n" + text)
	} else if !errors.Is(aerr, analysis.ErrDisabled) {
		b.WriteString("\n\n⚠️ AI comparison unavailable right now.")
	}
	return b.String(), nil
}

func (d *Dispatcher) analyse(ctx context.Context, ticker string) (string, error) {
	in, err := d.analysisInput(ctx, ticker)
	if err != nil {
		return fmt.Sprintf("⚠️ Could not fetch data for <b>%s</b>.", html.EscapeString(ticker)), nil
	}
	text, err := d.analyst.Analyse(ctx, in)
	return analysisReply(in, text, err), nil
}

func (d *Dispatcher) ask(ctx context.Context, ticker, question string) (string, error) {
	in, err := d.analysisInput(ctx, ticker)
	if err != nil {
		return fmt.Sprintf("⚠️ Could not fetch data for <b>%s</b>.", html.EscapeString(ticker)), nil
	}
	text, err := d.analyst.Answer(ctx, in, question)
	return analysisReply(in, text, err), nil
}

// analysisInput fetches the quote and recent news; news failures are tolerated
func (d *Dispatcher) analysisInput(ctx context.Context, ticker string) (analysis.Input, error) {
	q, err := d.gateway.FetchQuote(ctx, ticker)
	if err != nil {
		log.Warn().Err(err).Str("ticker", ticker).Msg("Quote fetch for analysis failed")
		return analysis.Input{}, err
	}
	news, err := d.gateway.FetchNews(ctx, ticker, d.now().Add(-analysisNewsLookback))
	if err != nil {
		log.Warn().Err(err).Str("ticker", ticker).Msg("News fetch for analysis failed")
	}
	return analysis.Input{Quote: q, News: news}, nil
}

func analysisReply(in analysis.Input, text string, err error) string {
	header := quoteLine(in.Quote)
	switch {
	case err == nil:
		return header + "\n\n" + text
	case errors.Is(err, analysis.ErrDisabled):
		return header + "\n\nAI analysis is disabled."
	}
	return header + "\n\n⚠️ AI analysis failed, try again later."
}

func (d *Dispatcher) publish(ctx context.Context, eventType string, chatID int64, ticker string, minutes int) {
	if d.publisher == nil {
		return
	}
	ev := models.BusEvent{
		ID:        uuid.New().String(),
		EventType: eventType,
		ChatID:    chatID,
		Ticker:    ticker,
		Minutes:   minutes,
		Timestamp: d.now().UTC(),
	}
	if err := d.publisher.PublishWatchlistEvent(ctx, ev); err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Int64("user", chatID).Msg("Failed to publish watchlist event")
	}
}

// pickCandidate matches a reply against pending choices by 1-based number
// or by symbol
func pickCandidate(candidates []models.TickerCandidate, reply string) (models.TickerCandidate, bool) {
	reply = strings.TrimSpace(reply)
	if n, err := strconv.Atoi(reply); err == nil {
		if n >= 1 && n <= len(candidates) {
			return candidates[n-1], true
		}
		return models.TickerCandidate{}, false
	}

	symbol := NormalizeTicker(strings.TrimPrefix(reply, "/"))
	for _, c := range candidates {
		if c.Symbol == symbol {
			return c, true
		}
	}
	return models.TickerCandidate{}, false
}

func choiceText(ticker string, candidates []models.TickerCandidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔎 <b>%s</b> is listed on several markets. Reply with a number:\n", html.EscapeString(ticker))
	for i, c := range candidates {
		fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, html.EscapeString(c.Symbol), c.Market)
		if c.Name != "" {
			fmt.Fprintf(&b, " - %s", html.EscapeString(c.Name))
		}
	}
	return b.String()
}

func quoteLine(q models.Quote) string {
	sign := ""
	if q.PercentChange.IsPositive() {
		sign = "+"
	}
	return fmt.Sprintf("<b>%s</b> %s (%s%s%%)", html.EscapeString(q.Ticker), q.Price.StringFixed(2), sign, q.PercentChange.StringFixed(2))
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
