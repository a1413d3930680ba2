// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for classmesh
// binaries.
//
// Configuration is loaded from a single file specified by:
//   - CLASSMESH_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery; a binary started
// without a config file runs on defaults, which suit a single
// classroom LAN.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for classmesh binaries.
type Config struct {
	// LogLevel is the slog level name: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// Classroom configures teacher/student alert mode.
	Classroom ClassroomConfig `yaml:"classroom"`

	// Chat configures chat room mode.
	Chat ChatConfig `yaml:"chat"`

	// WebRTC configures the fallback transport for networks that
	// block direct TCP between devices.
	WebRTC WebRTCConfig `yaml:"webrtc"`
}

// ClassroomConfig configures teacher/student alert mode.
type ClassroomConfig struct {
	// DisplayName is the name shown to the other side. Students can
	// change it at runtime; the stable identity key never changes.
	DisplayName string `yaml:"display_name"`

	// ListenAddr is the TCP listen address. ":0" picks an ephemeral
	// port, which discovery then announces.
	ListenAddr string `yaml:"listen_addr"`

	// IdentitySeed derives the student's stable identity key. When
	// empty, the hostname is used, which keeps the key stable across
	// relaunches on the same device.
	IdentitySeed string `yaml:"identity_seed"`
}

// ChatConfig configures chat room mode.
type ChatConfig struct {
	// DisplayName is the name shown in the room roster.
	DisplayName string `yaml:"display_name"`

	// ColorTag is the hex color (or emoji) tagging this user's turns.
	ColorTag string `yaml:"color_tag"`

	// ListenAddr is the TCP listen address, ":0" for ephemeral.
	ListenAddr string `yaml:"listen_addr"`
}

// WebRTCConfig configures the WebRTC transport.
type WebRTCConfig struct {
	// Enabled switches transports from TCP to WebRTC data channels.
	Enabled bool `yaml:"enabled"`

	// STUNServers are "stun:host:port" URLs for ICE. Empty means host
	// candidates only, which works on one LAN.
	STUNServers []string `yaml:"stun_servers"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Classroom: ClassroomConfig{
			ListenAddr: ":0",
		},
		Chat: ChatConfig{
			ColorTag:   "4ECDC4",
			ListenAddr: ":0",
		},
	}
}

// Load reads the config file named by CLASSMESH_CONFIG, or returns
// defaults when the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv("CLASSMESH_CONFIG")
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads one YAML config file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
