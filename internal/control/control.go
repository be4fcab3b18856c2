// Package control implements the line protocol that drives an engine from
// the interactive prompt and from socket clients.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"stemdeck/pkg/audioengine"
)

// Controller is the engine surface the protocol needs.
type Controller interface {
	Play(ctx context.Context) error
	Pause()
	Stop()
	TogglePlay(ctx context.Context) error
	Seek(seconds float64)
	SkipBy(delta float64)
	SetMasterVolume(percent float64)
	MasterVolume() float64
	SetTrackVolume(id string, percent float64) error
	SetTrackMuted(id string, muted bool) error
	SetTrackSolo(id string, solo bool) error
	LoadTrack(ctx context.Context, id string, src audioengine.Source) (audioengine.TrackSnapshot, error)
	RemoveTrack(id string) error
	Tracks() []audioengine.TrackSnapshot
	Track(id string) (audioengine.TrackSnapshot, bool)
	CurrentTime() float64
	Duration() float64
	State() audioengine.State
	SoloedTrack() (string, bool)
	SyncStats() audioengine.SyncStats
}

// SkipStep is the jump used by the keyboard-style skip verbs.
const SkipStep = 5.0

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrArgs           = errors.New("bad arguments")
)

// Reply is the outcome of one command. Data, when set, is sent as JSON.
type Reply struct {
	Err  error
	Msg  string
	Data any
}

func ok(msg string) Reply { return Reply{Msg: msg} }

func fail(err error) Reply { return Reply{Err: err} }

func failf(format string, a ...any) Reply { return Reply{Err: fmt.Errorf(format, a...)} }

// Line renders the reply for the wire: "OK <msg|json>" or "ERR <message>".
func (r Reply) Line() string {
	if r.Err != nil {
		return "ERR " + r.Err.Error()
	}
	if r.Data != nil {
		b, err := json.Marshal(r.Data)
		if err != nil {
			return "ERR " + err.Error()
		}
		return "OK " + string(b)
	}
	if r.Msg == "" {
		return "OK"
	}
	return "OK " + r.Msg
}

// TrackInfo is the TRACKS row for one stem.
type TrackInfo struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Instrument string  `json:"instrument"`
	Loaded     bool    `json:"loaded"`
	Duration   float64 `json:"duration"`
	Volume     float64 `json:"volume"`
	Muted      bool    `json:"muted"`
	Soloed     bool    `json:"soloed"`
	Effective  float64 `json:"effective"`
	Error      string  `json:"error,omitempty"`
}

type Status struct {
	State       string  `json:"state"`
	Playing     bool    `json:"playing"`
	Time        float64 `json:"time"`
	Duration    float64 `json:"duration"`
	Master      float64 `json:"master"`
	Soloed      string  `json:"soloed,omitempty"`
	Tracks      int     `json:"tracks"`
	SyncTicks   uint64  `json:"sync_ticks"`
	Corrections uint64  `json:"sync_corrections"`
}

type command struct {
	usage    string
	readOnly bool
	run      func(d *Dispatcher, ctx context.Context, args []string) Reply
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"PLAY":   {"PLAY", false, (*Dispatcher).play},
		"PAUSE":  {"PAUSE", false, (*Dispatcher).pause},
		"TOGGLE": {"TOGGLE", false, (*Dispatcher).toggle},
		"STOP":   {"STOP", false, (*Dispatcher).stop},
		"SEEK":   {"SEEK <sec|m:ss>", false, (*Dispatcher).seek},
		"SKIP":   {"SKIP [±sec]", false, (*Dispatcher).skip},
		"HOME":   {"HOME", false, (*Dispatcher).home},
		"END":    {"END", false, (*Dispatcher).end},
		"MASTER": {"MASTER [0-100]", false, (*Dispatcher).master},
		"VOL":    {"VOL <id> <0-100>", false, (*Dispatcher).volume},
		"MUTE":   {"MUTE <id> [on|off]", false, (*Dispatcher).mute},
		"SOLO":   {"SOLO <id> [on|off]", false, (*Dispatcher).solo},
		"LOAD":   {"LOAD <path>", false, (*Dispatcher).load},
		"REMOVE": {"REMOVE <id>", false, (*Dispatcher).remove},
		"TRACKS": {"TRACKS", true, (*Dispatcher).tracks},
		"STATUS": {"STATUS", true, (*Dispatcher).status},
		"PING":   {"PING", true, (*Dispatcher).ping},
		"ABOUT":  {"ABOUT", true, (*Dispatcher).about},
		"HELP":   {"HELP", true, (*Dispatcher).help},
	}
}

// Verbs lists every command verb in sorted order.
func Verbs() []string {
	out := make([]string, 0, len(commands))
	for v := range commands {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// ReadOnly reports whether verb only observes the engine.
func ReadOnly(verb string) bool {
	c, found := commands[strings.ToUpper(verb)]
	return found && c.readOnly
}

// Dispatcher parses command lines and applies them to a Controller.
type Dispatcher struct {
	ctl    Controller
	banner string
}

func NewDispatcher(ctl Controller, banner string) *Dispatcher {
	return &Dispatcher{ctl: ctl, banner: banner}
}

// Split returns the upper-cased verb and the raw argument text.
func Split(line string) (verb, rest string) {
	line = strings.TrimSpace(line)
	verb, rest, _ = strings.Cut(line, " ")
	return strings.ToUpper(verb), strings.TrimSpace(rest)
}

// Exec runs one command line.
func (d *Dispatcher) Exec(ctx context.Context, line string) Reply {
	verb, rest := Split(line)
	if verb == "" {
		return fail(ErrUnknownCommand)
	}
	c, found := commands[verb]
	if !found {
		return failf("%w: %s", ErrUnknownCommand, verb)
	}
	var args []string
	if verb == "LOAD" {
		// Paths may contain spaces.
		if rest != "" {
			args = []string{rest}
		}
	} else {
		args = strings.Fields(rest)
	}
	return c.run(d, ctx, args)
}

func (d *Dispatcher) play(ctx context.Context, _ []string) Reply {
	if err := d.ctl.Play(ctx); err != nil {
		return fail(err)
	}
	return ok(d.ctl.State().String())
}

func (d *Dispatcher) pause(context.Context, []string) Reply {
	d.ctl.Pause()
	return ok(d.ctl.State().String())
}

func (d *Dispatcher) toggle(ctx context.Context, _ []string) Reply {
	if err := d.ctl.TogglePlay(ctx); err != nil {
		return fail(err)
	}
	return ok(d.ctl.State().String())
}

func (d *Dispatcher) stop(context.Context, []string) Reply {
	d.ctl.Stop()
	return ok(d.ctl.State().String())
}

func (d *Dispatcher) seek(_ context.Context, args []string) Reply {
	if len(args) != 1 {
		return fail(ErrArgs)
	}
	t, err := ParseTime(args[0])
	if err != nil {
		return fail(err)
	}
	d.ctl.Seek(t)
	return ok(FormatTime(d.ctl.CurrentTime()))
}

func (d *Dispatcher) skip(_ context.Context, args []string) Reply {
	delta := SkipStep
	switch len(args) {
	case 0:
	case 1:
		v, err := ParseTime(args[0])
		if err != nil {
			return fail(err)
		}
		delta = v
	default:
		return fail(ErrArgs)
	}
	d.ctl.SkipBy(delta)
	return ok(FormatTime(d.ctl.CurrentTime()))
}

func (d *Dispatcher) home(context.Context, []string) Reply {
	d.ctl.Seek(0)
	return ok(FormatTime(d.ctl.CurrentTime()))
}

func (d *Dispatcher) end(context.Context, []string) Reply {
	d.ctl.Seek(d.ctl.Duration())
	return ok(FormatTime(d.ctl.CurrentTime()))
}

func (d *Dispatcher) master(_ context.Context, args []string) Reply {
	switch len(args) {
	case 0:
	case 1:
		v, err := parsePercent(args[0])
		if err != nil {
			return fail(err)
		}
		d.ctl.SetMasterVolume(v)
	default:
		return fail(ErrArgs)
	}
	return ok(fmt.Sprintf("master %.0f", d.ctl.MasterVolume()))
}

func (d *Dispatcher) volume(_ context.Context, args []string) Reply {
	if len(args) != 2 {
		return fail(ErrArgs)
	}
	v, err := parsePercent(args[1])
	if err != nil {
		return fail(err)
	}
	if err := d.ctl.SetTrackVolume(args[0], v); err != nil {
		return fail(err)
	}
	s, _ := d.ctl.Track(args[0])
	return ok(fmt.Sprintf("%s volume %.0f", s.ID, s.Volume))
}

func (d *Dispatcher) mute(_ context.Context, args []string) Reply {
	return d.flag(args, "muted", func(s audioengine.TrackSnapshot) bool { return s.Muted }, d.ctl.SetTrackMuted)
}

func (d *Dispatcher) solo(_ context.Context, args []string) Reply {
	return d.flag(args, "soloed", func(s audioengine.TrackSnapshot) bool { return s.Soloed }, d.ctl.SetTrackSolo)
}

// flag handles "<id> [on|off]"; without a value the flag is toggled.
func (d *Dispatcher) flag(args []string, name string, get func(audioengine.TrackSnapshot) bool, set func(string, bool) error) Reply {
	if len(args) < 1 || len(args) > 2 {
		return fail(ErrArgs)
	}
	id := args[0]
	s, found := d.ctl.Track(id)
	if !found {
		return failf("%w: %s", audioengine.ErrUnknownTrack, id)
	}
	want := !get(s)
	if len(args) == 2 {
		v, err := parseSwitch(args[1])
		if err != nil {
			return fail(err)
		}
		want = v
	}
	if err := set(id, want); err != nil {
		return fail(err)
	}
	s, _ = d.ctl.Track(id)
	return ok(fmt.Sprintf("%s %s %s", id, name, onOff(get(s))))
}

func (d *Dispatcher) load(ctx context.Context, args []string) Reply {
	if len(args) != 1 {
		return fail(ErrArgs)
	}
	return d.LoadFile(ctx, args[0])
}

// LoadFile loads path under an id derived from its name.
func (d *Dispatcher) LoadFile(ctx context.Context, path string) Reply {
	path = filepath.Clean(path)
	src := audioengine.FileSource(path)
	id := TrackID(src.DisplayName(), func(id string) bool {
		s, found := d.ctl.Track(id)
		// A failed record may be replaced by a new load of the same file.
		return found && !(s.LastError != nil && s.Path == path)
	})
	s, err := d.ctl.LoadTrack(ctx, id, src)
	if err != nil {
		return fail(err)
	}
	return ok(fmt.Sprintf("%s %s %s", s.ID, s.Name, FormatTime(s.Duration)))
}

func (d *Dispatcher) remove(_ context.Context, args []string) Reply {
	if len(args) != 1 {
		return fail(ErrArgs)
	}
	if err := d.ctl.RemoveTrack(args[0]); err != nil {
		return fail(err)
	}
	return ok("removed " + args[0])
}

func (d *Dispatcher) tracks(context.Context, []string) Reply {
	return Reply{Data: d.TrackList()}
}

// TrackList returns the TRACKS rows in load order.
func (d *Dispatcher) TrackList() []TrackInfo {
	snaps := d.ctl.Tracks()
	out := make([]TrackInfo, 0, len(snaps))
	for _, s := range snaps {
		info := TrackInfo{
			ID:         s.ID,
			Name:       s.Name,
			Instrument: GuessInstrument(s.Name),
			Loaded:     s.Loaded,
			Duration:   s.Duration,
			Volume:     s.Volume,
			Muted:      s.Muted,
			Soloed:     s.Soloed,
			Effective:  s.EffectiveVolume,
		}
		if s.LastError != nil {
			info.Error = s.LastError.Error()
		}
		out = append(out, info)
	}
	return out
}

func (d *Dispatcher) status(context.Context, []string) Reply {
	return Reply{Data: d.Status()}
}

func (d *Dispatcher) Status() Status {
	state := d.ctl.State()
	soloed, _ := d.ctl.SoloedTrack()
	stats := d.ctl.SyncStats()
	return Status{
		State:       state.String(),
		Playing:     state == audioengine.StatePlaying,
		Time:        d.ctl.CurrentTime(),
		Duration:    d.ctl.Duration(),
		Master:      d.ctl.MasterVolume(),
		Soloed:      soloed,
		Tracks:      len(d.ctl.Tracks()),
		SyncTicks:   stats.Ticks,
		Corrections: stats.Corrections,
	}
}

func (d *Dispatcher) ping(context.Context, []string) Reply {
	return ok("PONG")
}

func (d *Dispatcher) about(context.Context, []string) Reply {
	return ok(d.banner)
}

func (d *Dispatcher) help(context.Context, []string) Reply {
	usages := make([]string, 0, len(commands))
	for _, v := range Verbs() {
		usages = append(usages, commands[v].usage)
	}
	return ok(strings.Join(usages, ", "))
}

func parsePercent(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrArgs, s)
	}
	return v, nil
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "true", "yes":
		return true, nil
	case "off", "0", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("%w: want on or off, got %q", ErrArgs, s)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
