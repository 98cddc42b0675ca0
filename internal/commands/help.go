package commands

import "strings"

var usageLines = map[string]string{
	VerbAdd:      "/add TICKER - watch a ticker",
	VerbRemove:   "/remove TICKER - stop watching a ticker",
	VerbList:     "/list - show your watchlist",
	VerbInterval: "/interval MINUTES - set how often your list is checked (1-1440)",
	VerbCompare:  "/compare TICKER1 TICKER2 - compare two tickers",
	VerbAnalyse:  "/analyse TICKER - AI analysis of a ticker",
	VerbAsk:      "/ask TICKER QUESTION - ask about a ticker",
	VerbStatus:   "/status - agent and watchlist status",
	VerbPing:     "/ping - check the agent is alive",
	VerbHelp:     "/help - this message",
}

var helpOrder = []string{
	VerbAdd, VerbRemove, VerbList, VerbInterval, VerbCompare,
	VerbAnalyse, VerbAsk, VerbStatus, VerbPing, VerbHelp,
}

// HelpText lists every command
func HelpText() string {
	var b strings.Builder
	b.WriteString("<b>Stock Watch Agent</b>\n\n")
	for _, v := range helpOrder {
		b.WriteString(usageLines[v])
		b.WriteByte('\n')
	}
	b.WriteString("\nIndian listings are found automatically (NSE/BSE); reply with a number when asked to pick one.")
	return b.String()
}
