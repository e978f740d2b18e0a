// Package main is the entry point for the NULL Engine.
package main

import (
	"fmt"
	"os"
	"path/filepath"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

// resolveConfigPath picks the config file: --config flag > NULL_CONFIG env >
// config.json next to the executable or in the cwd. An empty result means
// environment and defaults only.
func resolveConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if p := os.Getenv("NULL_CONFIG"); p != "" {
		return p
	}
	return discoverConfig()
}

// discoverConfig looks for config.json next to the executable, then in the cwd.
func discoverConfig() string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "config.json")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if _, err := os.Stat("config.json"); err == nil {
		return "config.json"
	}
	return ""
}

func versionString() string {
	return fmt.Sprintf("nullengine %s (commit=%s, built=%s)", version, commit, date)
}
