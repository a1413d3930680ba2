// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

// classmesh-teacher runs teacher mode: advertise presence on the
// local network, invite every student discovered, and send alerts
// from an interactive prompt.
//
// Commands at the prompt:
//
//	important            broadcast "something important is being said"
//	call <student>       alert one student by name or stable ID
//	roster               print the connected students
//	quit                 stop and exit
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/classmesh-foundation/classmesh/classroom"
	"github.com/classmesh-foundation/classmesh/discovery"
	"github.com/classmesh-foundation/classmesh/identity"
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
	var listenAddr string
	var logLevel string

	flagSet := pflag.NewFlagSet("classmesh-teacher", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to classmesh.yaml")
	flagSet.StringVar(&name, "name", "", "teacher display name (overrides config)")
	flagSet.StringVar(&listenAddr, "listen", "", "TCP listen address (overrides config)")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn, or error")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("classmesh-teacher")
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
		cfg.Classroom.DisplayName = name
	}
	if listenAddr != "" {
		cfg.Classroom.ListenAddr = listenAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if cfg.Classroom.DisplayName == "" {
		return fmt.Errorf("no display name; pass --name or set classroom.display_name")
	}

	logger := newLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tcp, err := transport.NewTCPTransport(cfg.Classroom.ListenAddr, logger)
	if err != nil {
		return err
	}
	zeroconf := discovery.NewZeroconf(discovery.ClassroomService, clock.Real(), logger)

	ui := newTeacherUI(os.Stdout)
	coordinator := classroom.NewTeacher(classroom.TeacherConfig{
		Name:       cfg.Classroom.DisplayName,
		Advertiser: zeroconf,
		Browser:    zeroconf,
		Transport:  tcp,
		Logger:     logger,
	})
	return runTeacher(ctx, coordinator, ui, cfg.Classroom.DisplayName)
}

func runTeacher(ctx context.Context, coordinator *classroom.TeacherCoordinator, ui *teacherUI, teacherName string) error {
	if err := coordinator.Start(ctx); err != nil {
		return err
	}
	defer coordinator.Stop()

	ui.printStatus(coordinator.Status())

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	for {
		ui.prompt()
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := handleCommand(coordinator, ui, teacherName, line); done {
				return nil
			}
		}
	}
}

func handleCommand(coordinator *classroom.TeacherCoordinator, ui *teacherUI, teacherName, line string) bool {
	command, argument, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch command {
	case "":
	case "important":
		a := wire.NewAlert(wire.AlertImportantNow, teacherName)
		if err := coordinator.SendAlert(a, ""); err != nil {
			ui.printError(err)
		} else {
			ui.printSent("important now", "all students")
		}
	case "call":
		target, ok := findStudent(coordinator.Roster(), strings.TrimSpace(argument))
		if !ok {
			ui.printError(fmt.Errorf("no student matching %q", argument))
			break
		}
		a := wire.NewAlert(wire.AlertCalledByName, teacherName).
			Targeted(target.ID, target.DisplayName)
		if err := coordinator.SendAlert(a, target.ID); err != nil {
			ui.printError(err)
		} else {
			ui.printSent("called by name", target.DisplayName)
		}
	case "roster":
		ui.printRoster(coordinator.Roster(), coordinator.Status())
	case "quit", "exit":
		return true
	default:
		ui.printError(fmt.Errorf("unknown command %q", command))
	}
	return false
}

// findStudent matches by stable ID first, then by display name.
func findStudent(roster []identity.Peer, query string) (identity.Peer, bool) {
	for _, peer := range roster {
		if peer.ID == query {
			return peer, true
		}
	}
	for _, peer := range roster {
		if strings.EqualFold(peer.DisplayName, query) {
			return peer, true
		}
	}
	return identity.Peer{}, false
}

func readLines(file *os.File, lines chan<- string) {
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	close(lines)
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
