package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/trogers1052/stock-watch-agent/internal/models"
)

// Format renders an event as Telegram HTML
func Format(ev models.Event) string {
	switch ev.Kind {
	case models.EventKindPriceMove:
		return formatPriceMove(ev)
	case models.EventKindNews:
		return formatNews(ev)
	}
	return fmt.Sprintf("<b>%s</b> update", html.EscapeString(ev.Ticker))
}

func formatPriceMove(ev models.Event) string {
	icon := "📈"
	if ev.ChangePercent.IsNegative() {
		icon = "📉"
	}
	sign := ""
	if ev.ChangePercent.IsPositive() {
		sign = "+"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b> %s%s%%\n", icon, html.EscapeString(ev.Ticker), sign, ev.ChangePercent.StringFixed(2))
	if ev.Quote != nil {
		fmt.Fprintf(&b, "Price: <b>%s</b> (was %s)", ev.Quote.Price.StringFixed(2), ev.PreviousPrice.StringFixed(2))
		if !ev.Quote.Timestamp.IsZero() {
			fmt.Fprintf(&b, "\n<i>%s UTC</i>", ev.Quote.Timestamp.UTC().Format("2006-01-02 15:04"))
		}
	}
	return b.String()
}

func formatNews(ev models.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📰 <b>%s</b>", html.EscapeString(ev.Ticker))
	a := ev.Article
	if a == nil {
		return b.String()
	}
	if a.Material {
		b.WriteString(" ⚠️")
	}
	fmt.Fprintf(&b, "\n<b>%s</b>", html.EscapeString(a.Headline))
	if a.Summary != "" {
		fmt.Fprintf(&b, "\n%s", html.EscapeString(truncate(a.Summary, 300)))
	}
	source := a.Source
	if source == "" {
		source = "Read more"
	}
	if a.URL != "" {
		fmt.Fprintf(&b, "\n<a href=\"%s\">%s</a>", html.EscapeString(a.URL), html.EscapeString(source))
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
