/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"stemdeck/internal/control"
	"stemdeck/pkg/audioengine"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var playFlags struct {
	watch string
}

var playCmd = &cobra.Command{
	Use:   "play [stem files...]",
	Short: "Load stems and mix them from an interactive prompt",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setup(cmd, false); err != nil {
			return err
		}
		defer teardown()
		if cmd.Flags().Changed("watch") {
			cfg.WatchDir = playFlags.watch
		}
		if len(args) == 0 && cfg.WatchDir == "" {
			return errNoInput
		}
		return runREPL(cmd.Context(), args)
	},
}

func init() {
	playCmd.Flags().StringVar(&playFlags.watch, "watch", "", "also load stems dropped into this directory")
	rootCmd.AddCommand(playCmd)
}

// prompt tracks the last whole second shown so time updates only redraw
// when the clock visibly moves.
type prompt struct {
	rl    *readline.Instance
	shown atomic.Int64
	total atomic.Int64
}

func (p *prompt) update(now, total float64) {
	n, t := int64(now), int64(total)
	prevN, prevT := p.shown.Swap(n), p.total.Swap(t)
	if prevN == n && prevT == t {
		return
	}
	p.rl.SetPrompt(fmt.Sprintf("[%s/%s] >> ", control.FormatTime(now), control.FormatTime(total)))
	p.rl.Refresh()
}

func runREPL(ctx context.Context, files []string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM)
	defer stop()

	var sess *session
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "[0:00/0:00] >> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		AutoComplete:    completer(func() *session { return sess }),
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	out := rl.Stdout()
	p := &prompt{rl: rl}
	p.shown.Store(-1)

	sess = openSession(audioengine.Callbacks{
		OnTimeUpdate: func(now float64) {
			if sess != nil {
				p.update(now, sess.engine.Duration())
			}
		},
		OnPlayStateChange: func(playing bool) {
			if playing {
				fmt.Fprintln(out, " [>] playing")
			} else {
				fmt.Fprintln(out, " [||] stopped playing")
			}
		},
		OnError: func(err error) {
			fmt.Fprintf(out, " [!] %v\n", err)
		},
	}, out)
	defer sess.close()

	fmt.Fprintf(out, "=== %s ===\n", about())
	sess.loadFiles(ctx, files)
	if cfg.WatchDir != "" {
		if err := sess.watchDir(ctx, cfg.WatchDir); err != nil {
			return err
		}
	}
	fmt.Fprintln(out, "(Tip: HELP lists commands, TAB completes, QUIT leaves)")
	p.update(sess.engine.CurrentTime(), sess.engine.Duration())

	for ctx.Err() == nil {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		verb, _ := control.Split(line)
		switch verb {
		case "":
			continue
		case "QUIT", "EXIT", "Q":
			return nil
		}

		reply := sess.ctl.Exec(ctx, line)
		printReply(out, verb, reply)
		p.update(sess.engine.CurrentTime(), sess.engine.Duration())
	}
	return nil
}

func printReply(w io.Writer, verb string, r control.Reply) {
	if r.Err != nil {
		fmt.Fprintf(w, " [!] %v\n", r.Err)
		return
	}
	switch data := r.Data.(type) {
	case []control.TrackInfo:
		printTracks(w, data)
	case control.Status:
		fmt.Fprintf(w, " %s %s/%s  master %.0f  tracks %d  solo %q  sync %d/%d\n",
			data.State, control.FormatTime(data.Time), control.FormatTime(data.Duration),
			data.Master, data.Tracks, data.Soloed, data.Corrections, data.SyncTicks)
	default:
		if verb == "HELP" {
			for _, u := range strings.Split(r.Msg, ", ") {
				fmt.Fprintf(w, "  %s\n", u)
			}
			return
		}
		fmt.Fprintf(w, " %s\n", r.Line())
	}
}

func printTracks(w io.Writer, rows []control.TrackInfo) {
	if len(rows) == 0 {
		fmt.Fprintln(w, " no stems loaded")
		return
	}
	fmt.Fprintf(w, " %-16s %-8s %-24s %6s %4s %-5s %s\n", "ID", "KIND", "NAME", "LENGTH", "VOL", "FLAGS", "OUT")
	for _, t := range rows {
		flags := ""
		if t.Muted {
			flags += "M"
		}
		if t.Soloed {
			flags += "S"
		}
		if t.Error != "" {
			fmt.Fprintf(w, " %-16s %-8s %-24s failed: %s\n", t.ID, t.Instrument, t.Name, t.Error)
			continue
		}
		fmt.Fprintf(w, " %-16s %-8s %-24s %6s %4.0f %-5s %3.0f%%\n",
			t.ID, t.Instrument, t.Name, control.FormatTime(t.Duration), t.Volume, flags, t.Effective*100)
	}
}

// completer offers verbs, paths after LOAD and track ids after the
// per-track verbs.
func completer(sess func() *session) *readline.PrefixCompleter {
	trackIDs := readline.PcItemDynamic(func(string) []string {
		s := sess()
		if s == nil {
			return nil
		}
		var ids []string
		for _, t := range s.engine.Tracks() {
			ids = append(ids, t.ID)
		}
		return ids
	})

	var items []readline.PrefixCompleterInterface
	for _, v := range control.Verbs() {
		switch v {
		case "LOAD":
			items = append(items, readline.PcItem(strings.ToLower(v), readline.PcItemDynamic(listFiles)))
		case "VOL", "MUTE", "SOLO", "REMOVE":
			items = append(items, readline.PcItem(strings.ToLower(v), trackIDs))
		default:
			items = append(items, readline.PcItem(strings.ToLower(v)))
		}
	}
	items = append(items, readline.PcItem("quit"))
	return readline.NewPrefixCompleter(items...)
}

// listFiles completes the path typed after LOAD.
func listFiles(line string) []string {
	_, typed, _ := strings.Cut(strings.TrimLeft(line, " "), " ")
	dir := filepath.Dir(typed)
	if typed == "" {
		dir = "."
	}
	entries, _ := os.ReadDir(dir)
	var names []string
	for _, e := range entries {
		name := filepath.Join(dir, e.Name())
		if !strings.HasPrefix(name, typed) {
			continue
		}
		if e.IsDir() {
			names = append(names, name+string(filepath.Separator))
		} else if control.IsAudioFile(name) {
			names = append(names, name)
		}
	}
	return names
}
