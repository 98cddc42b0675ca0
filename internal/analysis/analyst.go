// Package analysis produces narrative commentary on a ticker using a
// generative model.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

// ErrDisabled is returned when no model is configured
var ErrDisabled = errors.New("AI analysis disabled")

// Input is the market context handed to the model for one ticker
type Input struct {
	Quote models.Quote
	News  []models.NewsArticle
}

// Analyst answers free-form questions about tickers
type Analyst interface {
	Analyse(ctx context.Context, in Input) (string, error)
	Answer(ctx context.Context, in Input, question string) (string, error)
	Compare(ctx context.Context, a, b Input) (string, error)
}

// Generator turns a system and user prompt into text
type Generator interface {
	Generate(ctx context.Context, system, user string, temperature float32) (string, error)
}

// Service is an Analyst built on a Generator
type Service struct {
	gen Generator
}

// NewService creates an Analyst. A nil generator disables analysis.
func NewService(gen Generator) *Service {
	return &Service{gen: gen}
}

// Analyse writes a short strategic report for one ticker
func (s *Service) Analyse(ctx context.Context, in Input) (string, error) {
	if s.gen == nil {
		return "", ErrDisabled
	}
	system := "You are a senior strategic advisor.\n" +
		"RULES:\n" +
		"1. Analyze the narrative from structural drivers, not just price.\n" +
		"2. Consider industry trends and macro shifts.\n" +
		"3. Use only bullet points, no paragraphs.\n" +
		"4. If data is missing say 'Insufficient Data' rather than guess.\n" +
		"5. Format with Telegram HTML (<b>, <i>) only. Max 200 words."
	user := fmt.Sprintf("Write a brief intelligence report for %s.\n\n%s\n\n"+
		"FORMAT:\n"+
		"• <b>SUMMARY</b>: 1-2 bullets on the core narrative.\n"+
		"• <b>DRIVERS</b>: 2-3 bullets on catalysts.\n"+
		"• <b>RISKS</b>: 2 bullets on red flags.\n"+
		"• <b>OUTLOOK</b>: what to watch in the next 30 days.\n"+
		"• <b>RATING</b>: BUY/HOLD/SELL with one line of logic.",
		in.Quote.Ticker, describe(in))

	return s.generate(ctx, in.Quote.Ticker, system, user, 0.3)
}

// Answer responds to a user's question about one ticker
func (s *Service) Answer(ctx context.Context, in Input, question string) (string, error) {
	if s.gen == nil {
		return "", ErrDisabled
	}
	system := "You are a senior equity analyst. Break the question down to its logical drivers. " +
		"Always use bullet points. Keep answers objective and grounded in the data given. " +
		"Format with Telegram HTML (<b>, <i>) only."
	user := fmt.Sprintf("%s\n\nQuestion: %s", describe(in), question)

	return s.generate(ctx, in.Quote.Ticker, system, user, 0.3)
}

// Compare contrasts two tickers and names a winner
func (s *Service) Compare(ctx context.Context, a, b Input) (string, error) {
	if s.gen == nil {
		return "", ErrDisabled
	}
	system := "You are an equity researcher. Compare two stocks using first-principles logic. " +
		"Use bullet points only. Do not speculate on missing data. Format with Telegram HTML (<b>, <i>) only."
	user := fmt.Sprintf("Stock 1:\n%s\n\nStock 2:\n%s\n\n"+
		"FORMAT:\n"+
		"• <b>MOMENTUM</b>: bulleted comparison.\n"+
		"• <b>NEWS FLOW</b>: what each stock's recent news implies.\n"+
		"• <b>VERDICT</b>: WINNER: [TICKER] with one sentence of logic.",
		describe(a), describe(b))

	return s.generate(ctx, a.Quote.Ticker+"/"+b.Quote.Ticker, system, user, 0.2)
}

func (s *Service) generate(ctx context.Context, subject, system, user string, temperature float32) (string, error) {
	text, err := s.gen.Generate(ctx, system, user, temperature)
	if err != nil {
		log.Error().Err(err).Str("ticker", subject).Msg("Analysis generation failed")
		return "", fmt.Errorf("failed to generate analysis for %s: %w", subject, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty analysis for %s", subject)
	}
	return text, nil
}

// maxHeadlines bounds the news handed to the model
const maxHeadlines = 8

func describe(in Input) string {
	var b strings.Builder
	q := in.Quote
	fmt.Fprintf(&b, "Ticker: %s\n", q.Ticker)
	fmt.Fprintf(&b, "Price: %s (%s, %s%% today)\n",
		q.Price.StringFixed(2), q.Change.StringFixed(2), q.PercentChange.StringFixed(2))

	if len(in.News) == 0 {
		b.WriteString("Recent headlines: none")
		return b.String()
	}
	b.WriteString("Recent headlines:")
	for i, n := range in.News {
		if i == maxHeadlines {
			break
		}
		fmt.Fprintf(&b, "\n- %s", n.Headline)
	}
	return b.String()
}
