/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"os"
	"os/signal"
	"syscall"

	"stemdeck/internal/control"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveFlags struct {
	socket string
	watch  string
}

var serveCmd = &cobra.Command{
	Use:   "serve [stem files...]",
	Short: "Run headless and take commands over a unix socket",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setup(cmd, true); err != nil {
			return err
		}
		defer teardown()
		f := cmd.Flags()
		if f.Changed("socket") {
			cfg.SocketPath = serveFlags.socket
		}
		if f.Changed("watch") {
			cfg.WatchDir = serveFlags.watch
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := control.NewServer(log.Named("control"))
		sess := openSession(srv.Callbacks(), cmd.OutOrStdout())
		defer sess.close()

		sess.loadFiles(ctx, args)
		if cfg.WatchDir != "" {
			if err := sess.watchDir(ctx, cfg.WatchDir); err != nil {
				return err
			}
		}

		ln, err := control.Listen(cfg.SocketPath)
		if err != nil {
			return err
		}
		defer os.Remove(cfg.SocketPath)

		log.Info("control socket ready", zap.String("socket", cfg.SocketPath), zap.String("version", about()))
		return srv.Serve(ctx, ln, sess.ctl)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.socket, "socket", "", "control socket path")
	serveCmd.Flags().StringVar(&serveFlags.watch, "watch", "", "load stems dropped into this directory")
	rootCmd.AddCommand(serveCmd)
}
