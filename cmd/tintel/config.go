package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mslinn/testintel/pkg/config"
)

func (a *app) configure(args []string, configPath string) error {
	if len(args) == 0 {
		fmt.Fprintf(a.stderr, "Error: config requires a subcommand (init, show, get, set, path)\n")
		return errUsage
	}

	switch args[0] {
	case "init":
		return a.configInit(args[1:], configPath)
	case "show":
		return a.configShow(configPath)
	case "get":
		return a.configGet(args[1:])
	case "set":
		return a.configSet(args[1:], configPath)
	case "path":
		fmt.Fprintln(a.stdout, configPath)
		return nil
	default:
		fmt.Fprintf(a.stderr, "Error: unknown config subcommand '%s'\n", args[0])
		return errUsage
	}
}

func (a *app) configInit(args []string, configPath string) error {
	fs := a.newFlagSet("init")
	force := fs.BoolP("force", "f", false, "Overwrite existing config file")
	if err := parse(fs, args); err != nil {
		return err
	}

	if _, err := os.Stat(configPath); err == nil && !*force {
		fmt.Fprintf(a.stderr, "Error: config file already exists at %s\n", configPath)
		fmt.Fprintf(a.stderr, "Use --force to overwrite\n")
		return errUsage
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(a.stdout, "✓ Created config file at %s\n", configPath)
	fmt.Fprintln(a.stdout, "\nDefault configuration:")
	a.printConfig(cfg)
	fmt.Fprintln(a.stdout, "\nEdit the file or use 'tintel config set' to customize.")
	return nil
}

func (a *app) configShow(configPath string) error {
	fmt.Fprintf(a.stdout, "Configuration from: %s\n\n", configPath)
	a.printConfig(a.cfg)

	fmt.Fprintln(a.stdout, "\nEnvironment variable overrides:")
	for _, env := range []string{
		config.EnvDatabase, config.EnvDataset, config.EnvOrder, config.EnvSeed,
		config.EnvLogLevel, config.EnvPrioritize, config.EnvHistoryWindow,
	} {
		if value := os.Getenv(env); value != "" {
			fmt.Fprintf(a.stdout, "  %s=%s\n", env, value)
		}
	}
	return nil
}

func (a *app) printConfig(cfg *config.Config) {
	for _, key := range config.Keys() {
		value, _ := cfg.Get(key)
		fmt.Fprintf(a.stdout, "  %-15s %s\n", key+":", value)
	}
}

func (a *app) configGet(args []string) error {
	if len(args) != 1 {
		fmt.Fprintf(a.stderr, "Error: 'get' requires KEY argument\n\n")
		fmt.Fprintf(a.stderr, "Valid keys: %s\n", strings.Join(config.Keys(), ", "))
		return errUsage
	}

	value, err := a.cfg.Get(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, value)
	return nil
}

func (a *app) configSet(args []string, configPath string) error {
	if len(args) != 2 {
		fmt.Fprintf(a.stderr, "Error: 'set' requires KEY and VALUE arguments\n\n")
		fmt.Fprintf(a.stderr, "Usage: tintel config set KEY VALUE\n")
		fmt.Fprintf(a.stderr, "Valid keys: %s\n", strings.Join(config.Keys(), ", "))
		return errUsage
	}
	key, value := args[0], args[1]

	if err := a.cfg.Set(key, value); err != nil {
		return err
	}
	if err := a.cfg.Save(configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(a.stdout, "✓ Set %s = %s\n", key, value)
	return nil
}
