package commands

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

var tickerPattern = regexp.MustCompile(`^[A-Z0-9^][A-Z0-9.\-=]{0,19}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("ticker", func(fl validator.FieldLevel) bool {
		return tickerPattern.MatchString(fl.Field().String())
	})
	return v
}

// Request is a validated command ready to apply
type Request interface {
	verb() string
}

// TickerRequest targets a single ticker (add, remove, analyse)
type TickerRequest struct {
	Verb   string
	Ticker string `validate:"required,ticker"`
}

// IntervalRequest changes the caller's check interval
type IntervalRequest struct {
	Minutes int `validate:"min=1,max=1440"`
}

// CompareRequest compares two different tickers
type CompareRequest struct {
	First  string `validate:"required,ticker"`
	Second string `validate:"required,ticker,nefield=First"`
}

// AskRequest is a free-form question about a ticker
type AskRequest struct {
	Ticker   string `validate:"required,ticker"`
	Question string `validate:"required,max=500"`
}

// SimpleRequest carries a verb without arguments (list, status, ping, help)
type SimpleRequest struct {
	Verb string
}

func (r TickerRequest) verb() string   { return r.Verb }
func (r IntervalRequest) verb() string { return VerbInterval }
func (r CompareRequest) verb() string  { return VerbCompare }
func (r AskRequest) verb() string      { return VerbAsk }
func (r SimpleRequest) verb() string   { return r.Verb }

// Validate checks a parsed command and returns the typed request. Unknown
// verbs become a help request. Errors are *models.ValidationError.
func Validate(cmd Command) (Request, error) {
	var req Request

	switch cmd.Verb {
	case VerbAdd, VerbRemove, VerbAnalyse:
		if len(cmd.Args) != 1 {
			return nil, usage(cmd.Verb)
		}
		req = TickerRequest{Verb: cmd.Verb, Ticker: NormalizeTicker(cmd.Args[0])}

	case VerbInterval:
		if len(cmd.Args) != 1 {
			return nil, usage(cmd.Verb)
		}
		minutes, err := strconv.Atoi(cmd.Args[0])
		if err != nil {
			return nil, &models.ValidationError{Field: "minutes", Message: fmt.Sprintf("%q is not a whole number of minutes", cmd.Args[0])}
		}
		req = IntervalRequest{Minutes: minutes}

	case VerbCompare:
		if len(cmd.Args) != 2 {
			return nil, usage(cmd.Verb)
		}
		req = CompareRequest{First: NormalizeTicker(cmd.Args[0]), Second: NormalizeTicker(cmd.Args[1])}

	case VerbAsk:
		if len(cmd.Args) < 2 {
			return nil, usage(cmd.Verb)
		}
		req = AskRequest{Ticker: NormalizeTicker(cmd.Args[0]), Question: strings.Join(cmd.Args[1:], " ")}

	case VerbList, VerbStatus, VerbPing, VerbHelp:
		return SimpleRequest{Verb: cmd.Verb}, nil

	default:
		return SimpleRequest{Verb: VerbHelp}, nil
	}

	if err := validate.Struct(req); err != nil {
		return nil, toValidationError(err)
	}
	return req, nil
}

// ValidateTicker normalizes a symbol from any surface and applies the same
// rule as chat commands. Errors are *models.ValidationError.
func ValidateTicker(raw string) (string, error) {
	ticker := NormalizeTicker(raw)
	if err := validate.Struct(TickerRequest{Verb: VerbAdd, Ticker: ticker}); err != nil {
		return "", toValidationError(err)
	}
	return ticker, nil
}

func usage(verb string) error {
	return &models.ValidationError{Message: "Usage: " + usageLines[verb]}
}

func toValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return &models.ValidationError{Message: err.Error()}
	}

	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "ticker":
		return &models.ValidationError{Field: "ticker", Message: fmt.Sprintf("%q is not a valid ticker symbol", fe.Value())}
	case "min":
		if field == "minutes" {
			return &models.ValidationError{Field: field, Message: "interval must be at least 1 minute"}
		}
	case "max":
		if field == "minutes" {
			return &models.ValidationError{Field: field, Message: "interval cannot exceed 24 hours (1440 minutes)"}
		}
		return &models.ValidationError{Field: field, Message: "is too long"}
	case "nefield":
		return &models.ValidationError{Field: "ticker", Message: "pick two different tickers to compare"}
	case "required":
		return &models.ValidationError{Field: field, Message: "is required"}
	}
	return &models.ValidationError{Field: field, Message: fmt.Sprintf("failed %s check", fe.Tag())}
}
