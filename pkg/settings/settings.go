// Package settings persists scan settings between runs as a versioned JSON
// document:
//
//	{"version":1,"settings":{"max_ip_count":10,"max_latency":1000,...}}
//
// Documents without a version field are read as a bare settings object.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/projectdiscovery/cleanip/pkg/scanner"
	envutil "github.com/projectdiscovery/utils/env"
	"github.com/tidwall/gjson"
)

// Version is the document version written by Save
const Version = 1

const (
	DefaultMaxIPCount = 10
	DefaultMaxLatency = 1000
	DefaultPort       = 443
)

// ErrUnsupportedVersion is returned for documents written by a newer release
var ErrUnsupportedVersion = errors.New("unsupported settings version")

// Defaults returns the settings used when nothing was persisted
func Defaults() scanner.Settings {
	return scanner.Settings{
		MaxIPCount: DefaultMaxIPCount,
		MaxLatency: DefaultMaxLatency,
		Port:       DefaultPort,
	}
}

// DefaultPath returns the settings file location, CLEANIP_SETTINGS wins
func DefaultPath() string {
	if path := envutil.GetEnvOrDefault("CLEANIP_SETTINGS", ""); path != "" {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "cleanip-settings.json"
	}
	return filepath.Join(homeDir, ".config", "cleanip", "settings.json")
}

type document struct {
	Version  int    `json:"version"`
	Settings values `json:"settings"`
}

type values struct {
	MaxIPCount int    `json:"max_ip_count"`
	MaxLatency int    `json:"max_latency"`
	Filter     string `json:"ip_regex,omitempty"`
	ServerName string `json:"server_name,omitempty"`
	Port       int    `json:"port"`
}

// Load reads settings from path. A missing file yields Defaults and missing
// keys keep their default value.
func Load(path string) (scanner.Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), nil
		}
		return scanner.Settings{}, fmt.Errorf("error reading settings file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a settings document
func Parse(data []byte) (scanner.Settings, error) {
	if !gjson.ValidBytes(data) {
		return scanner.Settings{}, fmt.Errorf("error parsing settings: invalid json")
	}
	doc := gjson.ParseBytes(data)

	root := doc
	if version := doc.Get("version"); version.Exists() {
		if version.Int() > Version {
			return scanner.Settings{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version.Int())
		}
		root = doc.Get("settings")
	}

	s := Defaults()
	if v := root.Get("max_ip_count"); v.Exists() {
		s.MaxIPCount = int(v.Int())
	}
	if v := root.Get("max_latency"); v.Exists() {
		s.MaxLatency = int(v.Int())
	}
	if v := root.Get("ip_regex"); v.Exists() {
		s.Filter = v.String()
	}
	if v := root.Get("server_name"); v.Exists() {
		s.ServerName = v.String()
	}
	if v := root.Get("port"); v.Exists() {
		s.Port = int(v.Int())
	}
	return s, nil
}

// Save writes s to path with owner-only permissions. The file is replaced
// through a rename so readers never see a partial document.
func Save(path string, s scanner.Settings) error {
	data, err := json.MarshalIndent(document{
		Version: Version,
		Settings: values{
			MaxIPCount: s.MaxIPCount,
			MaxLatency: s.MaxLatency,
			Filter:     s.Filter,
			ServerName: s.ServerName,
			Port:       s.Port,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling settings: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("error creating settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("error creating temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("error writing settings: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("error setting permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error closing settings: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
