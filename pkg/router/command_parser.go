package router

import (
	"strings"

	"github.com/coretask-core/coretask/pkg/coreerr"
)

// ParsedCommand is the Tier-2 structured form of a slash command:
// (verb, positional args, kwargs).
type ParsedCommand struct {
	Verb   string
	Args   []string
	Kwargs map[string]string
}

// closed vocabulary of recognized kwargs keys; anything else is a parse
// error rather than being silently accepted.
var allowedKwargs = map[string]bool{
	"status":   true,
	"priority": true,
	"assignee": true,
	"project":  true,
	"limit":    true,
	"due":      true,
}

// ParseCommand tokenizes a "/verb arg1 key:value ..." line. Invalid
// syntax returns a coreerr.KindParse error rendered verbatim to the
// user; no side effects are performed here.
func ParseCommand(text string) (*ParsedCommand, error) {
	if !strings.HasPrefix(text, "/") {
		return nil, coreerr.ParseErrorf("commands must start with /")
	}
	body := strings.TrimSpace(text[1:])
	if body == "" {
		return nil, coreerr.ParseErrorf("empty command")
	}

	tokens := strings.Fields(body)
	verb := tokens[0]
	if verb == "" {
		return nil, coreerr.ParseErrorf("missing command verb")
	}

	cmd := &ParsedCommand{
		Verb:   verb,
		Kwargs: make(map[string]string),
	}

	for _, tok := range tokens[1:] {
		key, value, isKwarg := splitKwarg(tok)
		if !isKwarg {
			cmd.Args = append(cmd.Args, tok)
			continue
		}
		if !allowedKwargs[key] {
			return nil, coreerr.ParseErrorf("unknown option %q", key)
		}
		if value == "" {
			return nil, coreerr.ParseErrorf("option %q requires a value", key)
		}
		cmd.Kwargs[key] = value
	}

	return cmd, nil
}

// splitKwarg splits "key:value" into (key, value, true) whenever tok
// contains a colon with a non-empty key to its left; value may be empty
// (the caller treats that as a parse error). Returns (_, _, false) when
// tok has no colon at all, meaning it's a positional argument.
func splitKwarg(tok string) (string, string, bool) {
	idx := strings.Index(tok, ":")
	if idx <= 0 {
		return "", "", false
	}
	return strings.ToLower(tok[:idx]), tok[idx+1:], true
}
