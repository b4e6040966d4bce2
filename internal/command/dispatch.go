package command

import (
	"strings"

	"github.com/cantina-works/cantinaos/pkg/events"
)

// Emitter publishes a payload on a bus topic. Both service.Base and the raw
// bus satisfy it, so surfaces dispatch through their own lifecycle gate.
type Emitter interface {
	Emit(topic events.Topic, payload any)
}

// modeVerbs maps mode verbs to their target system mode.
var modeVerbs = map[string]string{
	"engage":    "INTERACTIVE",
	"ambient":   "AMBIENT",
	"disengage": "IDLE",
}

// Dispatch chooses the internal topic for cmd and emits the matching typed
// payload through e. It returns the topic used, or "" when the command was
// empty. Unknown verbs fall through to the generic cli.command topic.
func Dispatch(e Emitter, cmd Command) events.Topic {
	if cmd.Name == "" {
		return ""
	}

	base := events.NewTurnBase(cmd.ConversationID)

	switch {
	case modeVerbs[cmd.Name] != "":
		e.Emit(events.SystemSetModeRequest, events.SetModeRequest{
			Base: base,
			Mode: modeVerbs[cmd.Name],
		})
		return events.SystemSetModeRequest

	case cmd.Name == "play" && cmd.Subcommand == "music":
		e.Emit(events.MusicCommand, events.MusicRequest{
			Base:      base,
			Action:    "play",
			SongQuery: strings.Join(cmd.Args, " "),
			SessionID: cmd.SessionID,
		})
		return events.MusicCommand

	case cmd.Name == "stop" && cmd.Subcommand == "music":
		e.Emit(events.MusicCommand, events.MusicRequest{
			Base:      base,
			Action:    "stop",
			SessionID: cmd.SessionID,
		})
		return events.MusicCommand

	case cmd.Name == "list" && cmd.Subcommand == "music":
		e.Emit(events.MusicCommand, events.MusicRequest{
			Base:      base,
			Action:    "list",
			SessionID: cmd.SessionID,
		})
		return events.MusicCommand

	case cmd.Name == "install":
		e.Emit(events.MusicCommand, events.MusicRequest{
			Base:      base,
			Action:    "install",
			Directory: strings.Join(cmd.Args, " "),
			SessionID: cmd.SessionID,
		})
		return events.MusicCommand

	case cmd.Name == "dj" && cmd.Subcommand == "next":
		e.Emit(events.DJNextTrack, events.DJRequest{
			Base:      base,
			Action:    "next",
			SessionID: cmd.SessionID,
		})
		return events.DJNextTrack

	case cmd.Name == "dj":
		e.Emit(events.DJCommand, events.DJRequest{
			Base:      base,
			Action:    cmd.Subcommand,
			SessionID: cmd.SessionID,
		})
		return events.DJCommand

	case cmd.Name == "debug":
		e.Emit(events.DebugCommand, events.Command{
			Base:       base,
			Command:    cmd.Name,
			Subcommand: cmd.Subcommand,
			Args:       cmd.Args,
			RawInput:   cmd.RawInput,
			SessionID:  cmd.SessionID,
		})
		return events.DebugCommand

	case cmd.Name == "record":
		e.Emit(events.VoiceListeningStarted, events.VoiceListening{
			Base:   base,
			Source: "cli",
		})
		return events.VoiceListeningStarted

	case cmd.Name == "done":
		e.Emit(events.VoiceListeningStopRequested, events.VoiceListening{
			Base:   base,
			Source: "cli",
		})
		return events.VoiceListeningStopRequested

	case cmd.Name == "reset":
		e.Emit(events.ConversationResetRequested, events.ResetRequest{
			Base:   base,
			Source: "cli",
		})
		return events.ConversationResetRequested

	case cmd.Name == "quit" || cmd.Name == "exit":
		e.Emit(events.SystemShutdownRequested, events.ShutdownRequest{
			Base:   base,
			Source: "cli",
		})
		return events.SystemShutdownRequested

	default:
		e.Emit(events.CLICommand, events.Command{
			Base:       base,
			Command:    cmd.Name,
			Subcommand: cmd.Subcommand,
			Args:       cmd.Args,
			RawInput:   cmd.RawInput,
			SessionID:  cmd.SessionID,
		})
		return events.CLICommand
	}
}
