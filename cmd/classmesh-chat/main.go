// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

// classmesh-chat is the chat room TUI. Host a room to get a join
// code, or join by code (or join the first room found with no code).
// Typed lines are sent as chat turns to everyone in the room; the
// transcript accumulates on screen and can be exported on exit.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/classmesh-foundation/classmesh/chatroom"
	"github.com/classmesh-foundation/classmesh/discovery"
	"github.com/classmesh-foundation/classmesh/lib/clock"
	"github.com/classmesh-foundation/classmesh/lib/config"
	"github.com/classmesh-foundation/classmesh/lib/version"
	"github.com/classmesh-foundation/classmesh/transport"
	"github.com/classmesh-foundation/classmesh/wire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var name string
	var colorTag string
	var host bool
	var joinCode string
	var exportPath string
	var logLevel string

	flagSet := pflag.NewFlagSet("classmesh-chat", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to classmesh.yaml")
	flagSet.StringVar(&name, "name", "", "display name (overrides config)")
	flagSet.StringVar(&colorTag, "color", "", "hex color tag for your turns")
	flagSet.BoolVar(&host, "host", false, "host a new room")
	flagSet.StringVar(&joinCode, "join", "", "join code; empty joins the first room found")
	flagSet.StringVar(&exportPath, "export", "", "write a session archive here on exit")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn, or error")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("classmesh-chat")
		return nil
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if name != "" {
		cfg.Chat.DisplayName = name
	}
	if colorTag != "" {
		cfg.Chat.ColorTag = colorTag
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if cfg.Chat.DisplayName == "" {
		return fmt.Errorf("no display name; pass --name or set chat.display_name")
	}

	logger := newLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tcp, err := transport.NewTCPTransport(cfg.Chat.ListenAddr, logger)
	if err != nil {
		return err
	}
	zeroconf := discovery.NewZeroconf(discovery.ChatService, clock.Real(), logger)

	var program *tea.Program
	coordinator := chatroom.New(chatroom.Config{
		DisplayName: cfg.Chat.DisplayName,
		ColorTag:    cfg.Chat.ColorTag,
		Advertiser:  zeroconf,
		Browser:     zeroconf,
		Transport:   tcp,
		Logger:      logger,
		OnTurn: func(turn wire.ChatTurn) {
			if program != nil {
				program.Send(turnMsg{turn: turn})
			}
		},
		OnRosterChange: func() {
			if program != nil {
				program.Send(rosterMsg{})
			}
		},
	})
	defer coordinator.Stop()

	var code string
	if host {
		code, err = coordinator.StartHost(ctx)
		if err != nil {
			return err
		}
	} else {
		if err := coordinator.StartParticipant(ctx, joinCode); err != nil {
			return err
		}
		code = joinCode
	}

	model := newRoomModel(coordinator, cfg.Chat.DisplayName, cfg.Chat.ColorTag, host, code)
	program = tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return err
	}

	if exportPath != "" {
		return exportSession(coordinator, exportPath)
	}
	return nil
}

func exportSession(coordinator *chatroom.Coordinator, path string) error {
	session := coordinator.Session()
	session.Ongoing = false
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer file.Close()
	if err := chatroom.ExportArchive(file, &session); err != nil {
		return err
	}
	fmt.Printf("session archived to %s (%s, %d turns)\n",
		path, session.Duration().Round(time.Second), len(session.Turns))
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
