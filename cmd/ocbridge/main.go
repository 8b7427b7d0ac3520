// Package main is the entry point for the OpenCode chat bridge CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/vinayprograms/ocbridge/internal/autonomy"
	"github.com/vinayprograms/ocbridge/internal/config"
	"github.com/vinayprograms/ocbridge/internal/console"
	"github.com/vinayprograms/ocbridge/internal/gateway"
	"github.com/vinayprograms/ocbridge/internal/history"
	"github.com/vinayprograms/ocbridge/internal/invoke"
	"github.com/vinayprograms/ocbridge/internal/logging"
	"github.com/vinayprograms/ocbridge/internal/probe"
	"github.com/vinayprograms/ocbridge/internal/registry"
	"github.com/vinayprograms/ocbridge/internal/supervisor"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func init() {
	// Load .env for local development overrides
	_ = godotenv.Load()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("ocbridge"),
		kong.Description("Chat bridge for the OpenCode coding agent."),
		kongVars(),
	)
	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the config file: explicit path, or the default
// lookup with built-in fallbacks.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadDefault()
}

// Run starts the bridge with the console transport.
func (c *ServeCmd) Run() error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}

	log := logging.New()
	if c.Verbose {
		log.SetLevel(logging.LevelDebug)
	}
	if cfg.Storage.LogFile != "" {
		f, err := os.OpenFile(config.ExpandHome(cfg.Storage.LogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	store := registry.NewStore(config.ExpandHome(cfg.Storage.StateFile), log)
	store.Load()
	reg := registry.New(store, cfg.Agent.DefaultCwd)

	classifier, err := loadClassifier(cfg, log)
	if err != nil {
		return err
	}
	coord := autonomy.NewCoordinator(store, classifier)

	prober := probe.New(cfg.Daemon.URL)
	builder := invoke.NewBuilder(cfg.Agent.Path, cfg.Daemon.URL)

	sup := supervisor.New(log)
	sup.SetTimeout(time.Duration(cfg.Timeouts.Invocation) * time.Second)

	term := console.New(c.Actor, os.Stdin, os.Stdout)
	gw := gateway.New(cfg, log, prober, builder, sup, reg, coord, term)
	term.SetGateway(gw)

	log.Info("bridge starting", map[string]interface{}{
		"version": version,
		"agent":   cfg.Agent.Path,
		"state":   store.Path(),
	})
	return term.Run(context.Background())
}

// loadClassifier builds the denial classifier, with custom phrases when
// a patterns file is configured.
func loadClassifier(cfg *config.Config, log *logging.Logger) (*autonomy.Classifier, error) {
	if cfg.Autonomy.PatternsFile == "" {
		return autonomy.NewClassifier(), nil
	}
	classifier, err := autonomy.LoadClassifier(config.ExpandHome(cfg.Autonomy.PatternsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load denial patterns: %w", err)
	}
	log.Info("loaded denial patterns", map[string]interface{}{"file": cfg.Autonomy.PatternsFile})
	return classifier, nil
}

// Run renders the session history, live or static.
func (c *SessionsCmd) Run() error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}

	statePath := config.ExpandHome(cfg.Storage.StateFile)
	if c.State != "" {
		statePath = config.ExpandHome(c.State)
	}
	if _, err := os.Stat(statePath); err != nil {
		return fmt.Errorf("state file not found: %s", statePath)
	}

	log := logging.New()
	render := func() (string, error) {
		return history.Render(statePath, log)
	}

	if c.NoPager {
		content, err := render()
		if err != nil {
			return err
		}
		fmt.Println(content)
		return nil
	}

	pager := history.NewPager("ocbridge sessions")
	if c.Follow {
		return pager.RunLive(statePath, render)
	}
	content, err := render()
	if err != nil {
		return err
	}
	return pager.Run(content)
}

// Run checks the agent server once.
func (c *ProbeCmd) Run() error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	url := cfg.Daemon.URL
	if c.URL != "" {
		url = c.URL
	}

	st := probe.New(url).Status(context.Background())
	if st.Running {
		fmt.Printf("server running at %s\n%s\n", st.URL, st.Detail)
		return nil
	}
	fmt.Printf("server not reachable at %s\n%s\n", st.URL, st.Detail)
	os.Exit(1)
	return nil
}

// Run prints version information.
func (c *VersionCmd) Run() error {
	fmt.Printf("ocbridge version %s (commit: %s, built: %s)\n", version, commit, buildTime)
	return nil
}
