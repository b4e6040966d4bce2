// Package command implements the unified command pipeline: terminal lines
// and validated web actions are parsed into a single normalized command form
// and dispatched onto matching internal bus topics.
package command

import "strings"

// Command is the normalized form shared by both ingress surfaces.
type Command struct {
	// Name is the primary command verb, with shortcuts already expanded.
	Name string

	// Subcommand is set when the verb pair is a known compound command
	// (e.g. "play music", "debug level").
	Subcommand string

	// Args are the remaining tokens after the verb (and subcommand).
	Args []string

	// RawInput is the original line as typed.
	RawInput string

	// ConversationID groups the command with an in-flight voice turn, when
	// one exists.
	ConversationID string

	// SessionID traces a web command back to its socket session.
	SessionID string
}

// shortcuts expands one-letter (and short) terminal aliases. A shortcut may
// expand to a multi-token phrase.
var shortcuts = map[string]string{
	"e":   "engage",
	"a":   "ambient",
	"d":   "disengage",
	"st":  "status",
	"h":   "help",
	"r":   "reset",
	"q":   "quit",
	"l":   "list music",
	"p":   "play music",
	"s":   "stop music",
	"rec": "record",
}

// compounds lists the known "command subcommand" pairs. When the first two
// tokens match a pair, the second token becomes the subcommand.
var compounds = map[string]map[string]bool{
	"play":  {"music": true},
	"stop":  {"music": true},
	"list":  {"music": true},
	"eye":   {"pattern": true, "test": true, "status": true},
	"debug": {"level": true, "trace": true},
	"dj":    {"start": true, "stop": true, "next": true},
}

// Parse tokenizes a terminal line into a normalized Command. The first token
// is the primary command with shortcuts expanded; a recognised second token
// becomes the subcommand; everything else lands in Args. An empty or
// whitespace-only line yields a Command with an empty Name.
func Parse(line string) Command {
	cmd := Command{RawInput: line}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return cmd
	}

	// Expand the shortcut before compound detection so "p cantina band"
	// becomes "play music cantina band".
	if expansion, ok := shortcuts[strings.ToLower(fields[0])]; ok {
		fields = append(strings.Fields(expansion), fields[1:]...)
	}

	cmd.Name = strings.ToLower(fields[0])
	rest := fields[1:]

	if len(rest) > 0 {
		if subs, ok := compounds[cmd.Name]; ok && subs[strings.ToLower(rest[0])] {
			cmd.Subcommand = strings.ToLower(rest[0])
			rest = rest[1:]
		}
	}

	if len(rest) > 0 {
		cmd.Args = append([]string(nil), rest...)
	}
	return cmd
}
