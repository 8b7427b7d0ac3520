// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Run the bridge with a console transport"`
	Sessions SessionsCmd `cmd:"" help:"Browse stored session history"`
	Probe    ProbeCmd    `cmd:"" help:"Check whether the agent server is reachable"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// ServeCmd runs the bridge loop on stdin/stdout.
type ServeCmd struct {
	Config  string `short:"c" help:"Config file path (default: ocbridge.toml if present)"`
	Actor   int64  `default:"1" help:"Actor id for the console session"`
	Verbose bool   `short:"v" help:"Debug logging"`
}

// SessionsCmd renders the persisted session history.
type SessionsCmd struct {
	Config  string `short:"c" help:"Config file path"`
	State   string `help:"State file path (overrides config)"`
	Follow  bool   `short:"f" help:"Watch the state file and refresh live"`
	NoPager bool   `help:"Print to stdout instead of the pager"`
}

// ProbeCmd checks the agent server once, bypassing the cache.
type ProbeCmd struct {
	Config string `short:"c" help:"Config file path"`
	URL    string `help:"Server URL (overrides config)"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
