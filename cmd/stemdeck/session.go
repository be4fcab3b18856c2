/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"stemdeck/internal/control"
	"stemdeck/internal/dropdir"
	"stemdeck/internal/playback"
	"stemdeck/pkg/audioengine"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// session wires one engine to the speaker and the control protocol.
type session struct {
	engine *audioengine.Engine
	ctl    *control.Dispatcher
	watch  *dropdir.Watcher
	out    io.Writer
}

func openSession(cb audioengine.Callbacks, out io.Writer) *session {
	host := playback.New(playback.Config{
		SampleRate:      cfg.SampleRate,
		BufferSize:      cfg.BufferSize,
		ResampleQuality: cfg.ResampleQuality,
	}, log.Named("playback"))

	eng := audioengine.New(host,
		audioengine.WithCallbacks(cb),
		audioengine.WithLogger(log.Named("engine")),
		audioengine.WithSyncInterval(cfg.SyncInterval),
		audioengine.WithSyncThreshold(cfg.SyncThreshold),
		audioengine.WithMasterVolume(cfg.MasterVolume),
	)
	return &session{
		engine: eng,
		ctl:    control.NewDispatcher(eng, about()),
		out:    out,
	}
}

// loadFiles loads the batch and prints one line per file.
func (s *session) loadFiles(ctx context.Context, paths []string) int {
	if len(paths) == 0 {
		return 0
	}
	batch := make(map[string]bool)
	reqs := make([]audioengine.LoadRequest, 0, len(paths))
	for _, p := range paths {
		src := audioengine.FileSource(filepath.Clean(p))
		id := control.TrackID(src.DisplayName(), func(id string) bool {
			_, found := s.engine.Track(id)
			return found || batch[id]
		})
		batch[id] = true
		reqs = append(reqs, audioengine.LoadRequest{ID: id, Source: src})
	}

	loaded := 0
	for _, r := range s.engine.LoadTracks(ctx, reqs) {
		if r.Err != nil {
			fmt.Fprintf(s.out, " [!] %v\n", r.Err)
			continue
		}
		loaded++
		fmt.Fprintf(s.out, " [+] %-16s %-24s %s\n", r.Track.ID, r.Track.Name, control.FormatTime(r.Track.Duration))
	}
	fmt.Fprintf(s.out, "%d of %d stems loaded, mix length %s\n", loaded, len(reqs), control.FormatTime(s.engine.Duration()))
	return loaded
}

// watchDir follows a drop folder: new audio files are loaded, deleted
// ones removed.
func (s *session) watchDir(ctx context.Context, dir string) error {
	w, err := dropdir.Watch(dir, dropdir.Handler{
		Added: func(path string) {
			s.addDropped(ctx, path)
		},
		Removed: func(path string) {
			for _, t := range s.engine.Tracks() {
				if t.Path != filepath.Clean(path) {
					continue
				}
				if err := s.engine.RemoveTrack(t.ID); err != nil {
					log.Warn("remove dropped stem", zap.String("track", t.ID), zap.Error(err))
					continue
				}
				fmt.Fprintf(s.out, " [drop] %s removed\n", t.ID)
			}
		},
	}, dropdir.Options{Match: playable, Log: log.Named("dropdir")})
	if err != nil {
		return err
	}
	s.watch = w
	return nil
}

// addDropped loads a file that settled in the drop folder. A rewrite of a
// stem that is already loaded keeps the existing track.
func (s *session) addDropped(ctx context.Context, path string) {
	path = filepath.Clean(path)
	for _, t := range s.engine.Tracks() {
		if t.Path == path && (t.Loaded || t.Loading) {
			log.Debug("dropped stem already loaded", zap.String("track", t.ID), zap.String("path", path))
			return
		}
	}
	r := s.ctl.LoadFile(ctx, path)
	fmt.Fprintf(s.out, " [drop] %s: %s\n", filepath.Base(path), r.Line())
}

// playable accepts the files the speaker host can decode.
func playable(path string) bool {
	return playback.Decodable(audioengine.FileSource(path))
}

func (s *session) close() error {
	var err error
	if s.watch != nil {
		err = multierr.Append(err, s.watch.Close())
	}
	return multierr.Append(err, s.engine.Destroy())
}
