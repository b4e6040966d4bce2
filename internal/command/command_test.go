package command

import (
	"reflect"
	"testing"

	"github.com/cantina-works/cantinaos/pkg/events"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Command
	}{
		{
			name: "empty line",
			line: "   ",
			want: Command{RawInput: "   "},
		},
		{
			name: "bare verb",
			line: "status",
			want: Command{Name: "status", RawInput: "status"},
		},
		{
			name: "shortcut expansion",
			line: "e",
			want: Command{Name: "engage", RawInput: "e"},
		},
		{
			name: "multi-token shortcut",
			line: "p cantina band",
			want: Command{Name: "play", Subcommand: "music", Args: []string{"cantina", "band"}, RawInput: "p cantina band"},
		},
		{
			name: "compound command",
			line: "play music 3",
			want: Command{Name: "play", Subcommand: "music", Args: []string{"3"}, RawInput: "play music 3"},
		},
		{
			name: "debug level",
			line: "debug level gpt_service DEBUG",
			want: Command{Name: "debug", Subcommand: "level", Args: []string{"gpt_service", "DEBUG"}, RawInput: "debug level gpt_service DEBUG"},
		},
		{
			name: "non-compound second token stays arg",
			line: "eye blue",
			want: Command{Name: "eye", Args: []string{"blue"}, RawInput: "eye blue"},
		},
		{
			name: "case insensitive verbs",
			line: "Play Music one",
			want: Command{Name: "play", Subcommand: "music", Args: []string{"one"}, RawInput: "Play Music one"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Parse(tc.line)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Parse(%q) = %+v, want %+v", tc.line, got, tc.want)
			}
		})
	}
}

// fakeEmitter records the single emitted topic/payload pair.
type fakeEmitter struct {
	topic   events.Topic
	payload any
	count   int
}

func (f *fakeEmitter) Emit(topic events.Topic, payload any) {
	f.topic = topic
	f.payload = payload
	f.count++
}

func TestDispatch_TopicSelection(t *testing.T) {
	tests := []struct {
		line      string
		wantTopic events.Topic
	}{
		{"engage", events.SystemSetModeRequest},
		{"ambient", events.SystemSetModeRequest},
		{"disengage", events.SystemSetModeRequest},
		{"play music cantina band", events.MusicCommand},
		{"stop music", events.MusicCommand},
		{"list music", events.MusicCommand},
		{"install /tmp/new-tracks", events.MusicCommand},
		{"dj start", events.DJCommand},
		{"dj next", events.DJNextTrack},
		{"debug level all DEBUG", events.DebugCommand},
		{"record", events.VoiceListeningStarted},
		{"reset", events.ConversationResetRequested},
		{"r", events.ConversationResetRequested},
		{"done", events.VoiceListeningStopRequested},
		{"quit", events.SystemShutdownRequested},
		{"exit", events.SystemShutdownRequested},
		{"status", events.CLICommand},
		{"frobnicate", events.CLICommand},
	}

	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			f := &fakeEmitter{}
			got := Dispatch(f, Parse(tc.line))
			if got != tc.wantTopic {
				t.Errorf("Dispatch(%q) topic = %s, want %s", tc.line, got, tc.wantTopic)
			}
			if f.count != 1 {
				t.Errorf("Dispatch(%q) emitted %d events, want 1", tc.line, f.count)
			}
		})
	}
}

func TestDispatch_EmptyCommandEmitsNothing(t *testing.T) {
	f := &fakeEmitter{}
	if got := Dispatch(f, Parse("")); got != "" {
		t.Errorf("topic = %s, want empty", got)
	}
	if f.count != 0 {
		t.Errorf("emitted %d events, want 0", f.count)
	}
}

func TestDispatch_PlayQueryJoined(t *testing.T) {
	f := &fakeEmitter{}
	Dispatch(f, Parse("play music cantina band"))

	mc, ok := f.payload.(events.MusicRequest)
	if !ok {
		t.Fatalf("payload type = %T, want events.MusicRequest", f.payload)
	}
	if mc.Action != "play" || mc.SongQuery != "cantina band" {
		t.Errorf("payload = %+v, want action=play song_query=%q", mc, "cantina band")
	}
}

func TestDispatch_ModeVerbTargets(t *testing.T) {
	tests := []struct {
		verb string
		mode string
	}{
		{"engage", "INTERACTIVE"},
		{"ambient", "AMBIENT"},
		{"disengage", "IDLE"},
	}
	for _, tc := range tests {
		f := &fakeEmitter{}
		Dispatch(f, Parse(tc.verb))
		req, ok := f.payload.(events.SetModeRequest)
		if !ok {
			t.Fatalf("payload type = %T, want events.SetModeRequest", f.payload)
		}
		if req.Mode != tc.mode {
			t.Errorf("%s -> mode %s, want %s", tc.verb, req.Mode, tc.mode)
		}
	}
}
