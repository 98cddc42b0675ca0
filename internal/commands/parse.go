// Package commands turns chat messages into watchlist operations and
// replies. Handling is split into three phases: Parse is pure, Validate
// rejects bad input without touching state, and the Dispatcher applies.
package commands

import "strings"

// Verbs understood by the dispatcher
const (
	VerbAdd      = "add"
	VerbRemove   = "remove"
	VerbList     = "list"
	VerbInterval = "interval"
	VerbCompare  = "compare"
	VerbAnalyse  = "analyse"
	VerbAsk      = "ask"
	VerbStatus   = "status"
	VerbPing     = "ping"
	VerbHelp     = "help"
)

var aliases = map[string]string{
	"start":   VerbHelp,
	"analyze": VerbAnalyse,
	"rm":      VerbRemove,
	"del":     VerbRemove,
	"ls":      VerbList,
}

// Command is a parsed chat command
type Command struct {
	Verb string
	Args []string
}

// Parse reads a slash command. ok is false for text that is not a command.
// Verbs are lowercased, "/cmd@botname" suffixes are dropped and aliases
// are mapped to their canonical verb. Arguments are kept as typed.
func Parse(text string) (cmd Command, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return Command{}, false
	}

	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return Command{}, false
	}

	verb := strings.ToLower(fields[0])
	if i := strings.IndexByte(verb, '@'); i >= 0 {
		verb = verb[:i]
	}
	if canonical, ok := aliases[verb]; ok {
		verb = canonical
	}

	return Command{Verb: verb, Args: fields[1:]}, true
}

// NormalizeTicker uppercases and trims a user-supplied symbol
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
