// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

// classmesh-student runs student mode: advertise a stable identity on
// the local network, accept the teacher's connection, and show
// received alerts as terminal banners. An urgent alert raises a
// yes/no prompt offering to start live capture.
//
// Commands at the prompt:
//
//	y / n             answer a pending capture prompt
//	name <new name>   change the display name (identity is kept)
//	dismiss           dismiss the visible banner
//	quit              stop and exit
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

	"github.com/classmesh-foundation/classmesh/alert"
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

	flagSet := pflag.NewFlagSet("classmesh-student", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to classmesh.yaml")
	flagSet.StringVar(&name, "name", "", "student display name (overrides config)")
	flagSet.StringVar(&listenAddr, "listen", "", "TCP listen address (overrides config)")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn, or error")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("classmesh-student")
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
	studentID := deriveStudentID(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tcp, err := transport.NewTCPTransport(cfg.Classroom.ListenAddr, logger)
	if err != nil {
		return err
	}
	zeroconf := discovery.NewZeroconf(discovery.ClassroomService, clock.Real(), logger)

	banners := newBannerUI(os.Stdout)
	pipeline := alert.New(alert.Options{
		Presenter: banners,
		Feedback:  terminalFeedback{out: os.Stdout},
		Capture:   logCapture{logger: logger},
		Clock:     clock.Real(),
		Logger:    logger,
	})
	defer pipeline.Stop()

	coordinator := classroom.NewStudent(classroom.StudentConfig{
		Name:       cfg.Classroom.DisplayName,
		StudentID:  studentID,
		Advertiser: zeroconf,
		Transport:  tcp,
		Logger:     logger,
		OnAlert: func(a wire.Alert) {
			pipeline.Deliver(a, false)
		},
	})
	if err := coordinator.Start(ctx); err != nil {
		return err
	}
	defer coordinator.Stop()

	fmt.Println(coordinator.Status())
	fmt.Printf("identity %s\n", identity.VisibleName(cfg.Classroom.DisplayName, studentID))

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			command, argument, _ := strings.Cut(strings.TrimSpace(line), " ")
			switch command {
			case "":
			case "y", "yes":
				pipeline.Accept()
			case "n", "no":
				pipeline.Decline()
			case "dismiss":
				pipeline.Dismiss()
			case "name":
				newName := strings.TrimSpace(argument)
				if newName == "" {
					fmt.Println("usage: name <new name>")
					break
				}
				coordinator.SetDisplayName(newName)
				fmt.Printf("now advertising as %s\n", identity.VisibleName(newName, studentID))
			case "quit", "exit":
				return nil
			default:
				fmt.Printf("unknown command %q\n", command)
			}
		}
	}
}

// deriveStudentID computes the stable identity key. The seed defaults
// to the hostname so the key survives relaunches on the same device.
func deriveStudentID(cfg *config.Config) string {
	seed := cfg.Classroom.IdentitySeed
	if seed == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "classmesh-student"
		}
		seed = hostname
	}
	return identity.StableID([]byte(seed))
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
