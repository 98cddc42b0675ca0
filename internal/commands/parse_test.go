package commands

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Command
		ok   bool
	}{
		{"simple", "/add aapl", Command{Verb: "add", Args: []string{"aapl"}}, true},
		{"bot suffix", "/List@StockWatchBot", Command{Verb: "list", Args: []string{}}, true},
		{"alias start", "/start", Command{Verb: "help", Args: []string{}}, true},
		{"alias analyze", "/analyze TSLA", Command{Verb: "analyse", Args: []string{"TSLA"}}, true},
		{"extra whitespace", "  /compare   AAPL\tMSFT  ", Command{Verb: "compare", Args: []string{"AAPL", "MSFT"}}, true},
		{"plain text", "hello there", Command{}, false},
		{"bare slash", "/", Command{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Run("ticker is uppercased", func(t *testing.T) {
		req, err := Validate(Command{Verb: VerbAdd, Args: []string{"reliance.ns"}})
		require.NoError(t, err)
		assert.Equal(t, TickerRequest{Verb: VerbAdd, Ticker: "RELIANCE.NS"}, req)
	})

	t.Run("interval zero is rejected", func(t *testing.T) {
		_, err := Validate(Command{Verb: VerbInterval, Args: []string{"0"}})
		var verr *models.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "minutes", verr.Field)
		assert.Contains(t, verr.Message, "at least 1 minute")
	})

	t.Run("interval above a day is rejected", func(t *testing.T) {
		_, err := Validate(Command{Verb: VerbInterval, Args: []string{"1441"}})
		var verr *models.ValidationError
		assert.True(t, errors.As(err, &verr))
	})

	t.Run("interval must be a number", func(t *testing.T) {
		_, err := Validate(Command{Verb: VerbInterval, Args: []string{"soon"}})
		var verr *models.ValidationError
		assert.True(t, errors.As(err, &verr))
	})

	t.Run("valid interval", func(t *testing.T) {
		req, err := Validate(Command{Verb: VerbInterval, Args: []string{"30"}})
		require.NoError(t, err)
		assert.Equal(t, IntervalRequest{Minutes: 30}, req)
	})

	t.Run("bad ticker characters", func(t *testing.T) {
		_, err := Validate(Command{Verb: VerbAdd, Args: []string{"<script>"}})
		var verr *models.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "ticker", verr.Field)
	})

	t.Run("missing argument shows usage", func(t *testing.T) {
		_, err := Validate(Command{Verb: VerbRemove})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Usage: /remove TICKER")
	})

	t.Run("compare needs two different tickers", func(t *testing.T) {
		_, err := Validate(Command{Verb: VerbCompare, Args: []string{"aapl", "AAPL"}})
		var verr *models.ValidationError
		assert.True(t, errors.As(err, &verr))
	})

	t.Run("ask joins the question", func(t *testing.T) {
		req, err := Validate(Command{Verb: VerbAsk, Args: []string{"tsla", "why", "down?"}})
		require.NoError(t, err)
		assert.Equal(t, AskRequest{Ticker: "TSLA", Question: "why down?"}, req)
	})

	t.Run("unknown verb becomes help", func(t *testing.T) {
		req, err := Validate(Command{Verb: "frobnicate"})
		require.NoError(t, err)
		assert.Equal(t, SimpleRequest{Verb: VerbHelp}, req)
	})
}

func TestValidateTicker(t *testing.T) {
	ticker, err := ValidateTicker("  brk.b ")
	require.NoError(t, err)
	assert.Equal(t, "BRK.B", ticker)

	for _, raw := range []string{"", "<b>not a ticker!!", "ABCDEFGHIJKLMNOPQRSTUVWXYZ"} {
		_, err := ValidateTicker(raw)
		var verr *models.ValidationError
		assert.True(t, errors.As(err, &verr), "%q", raw)
	}
}
