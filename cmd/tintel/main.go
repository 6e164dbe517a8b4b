package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mslinn/testintel/pkg/config"
	"github.com/mslinn/testintel/pkg/database"
	"github.com/mslinn/testintel/pkg/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

var version = "dev" // Set by -ldflags during build

// Available subcommands
var subcommands = []struct {
	name        string
	description string
}{
	{"analyze", "Detect anomalously slow tests in an execution log"},
	{"prioritize", "Train the risk model and write the execution order"},
	{"reorder", "Apply the execution order to discovered tests"},
	{"history", "Inspect and export recorded runs"},
	{"config", "Manage configuration"},
}

// errUsage marks errors already explained to the user
var errUsage = errors.New("usage error")

type app struct {
	cfg    *config.Config
	log    *logrus.Logger
	dbPath string
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var (
		showVersion bool
		showHelp    bool
		debug       bool
		logLevel    string
		configPath  string
		dbPath      string
	)

	flags := pflag.NewFlagSet("tintel", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.BoolVarP(&showVersion, "version", "V", false, "Show version and exit")
	flags.BoolVarP(&showHelp, "help", "h", false, "Show this help message")
	flags.BoolVarP(&debug, "debug", "d", false, "Enable debug output")
	flags.BoolVarP(&debug, "verbose", "v", false, "Enable verbose output (alias for --debug)")
	flags.StringVar(&logLevel, "log-level", "", "Log level (default from config)")
	flags.StringVar(&configPath, "config", "", "Path to config file (default: ~/.testintel-config)")
	flags.StringVar(&dbPath, "db", "", "Path to SQLite database (default from config)")

	// Stop parsing at first non-flag argument (the subcommand)
	flags.SetInterspersed(false)
	if err := flags.Parse(args); err != nil {
		return 2
	}

	if showVersion {
		fmt.Fprintf(stdout, "tintel version %s\n", version)
		return 0
	}

	rest := flags.Args()
	if len(rest) == 0 || showHelp {
		printHelp(stdout)
		return 0
	}
	subcommand := rest[0]

	if configPath == "" {
		configPath = config.GetConfigPath()
	}
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}

	// config must stay usable to repair an invalid file
	if subcommand != "config" {
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(stderr, "Error: invalid configuration in %s: %v\n", configPath, err)
			return 1
		}
	}

	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	if debug {
		logLevel = "debug"
	}
	logger, err := logging.New(logLevel, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if dbPath == "" {
		dbPath = cfg.GetDatabasePath()
	}

	a := &app{cfg: cfg, log: logger, dbPath: dbPath, stdin: stdin, stdout: stdout, stderr: stderr}

	switch subcommand {
	case "analyze":
		err = a.analyze(rest[1:])
	case "prioritize":
		err = a.prioritize(rest[1:])
	case "reorder":
		err = a.reorder(rest[1:])
	case "history":
		err = a.history(rest[1:])
	case "config":
		err = a.configure(rest[1:], configPath)
	default:
		fmt.Fprintf(stderr, "Error: unknown subcommand '%s'\n\n", subcommand)
		printUsage(stderr)
		return 1
	}

	switch {
	case err == nil, errors.Is(err, pflag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		return 2
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

// openDB validates the database location and opens it
func (a *app) openDB() (*database.DB, error) {
	cfg := *a.cfg
	cfg.DatabasePath = a.dbPath
	if err := cfg.ValidateDatabase(); err != nil {
		return nil, err
	}
	return database.Open(cfg.GetDatabasePath())
}

func (a *app) component(name string) *logrus.Entry {
	return logging.Component(a.log, name)
}

// newFlagSet returns a subcommand flag set that reports errors instead of exiting
func (a *app) newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// parse parses subcommand flags, mapping parse failures to errUsage
func parse(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "Usage: tintel [OPTIONS] COMMAND [ARGS...]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	for _, sc := range subcommands {
		fmt.Fprintf(w, "  %-12s %s\n", sc.name, sc.description)
	}
	fmt.Fprintf(w, "\nRun 'tintel COMMAND --help' for more information on a command.\n")
}

func printHelp(w io.Writer) {
	fmt.Fprintf(w, "tintel - Test intelligence for slow-test detection and failure-first ordering\n\n")
	fmt.Fprintf(w, "Version: %s\n\n", version)
	fmt.Fprintf(w, "DESCRIPTION:\n")
	fmt.Fprintf(w, "  Flags tests whose duration exceeds mean + 2 standard deviations,\n")
	fmt.Fprintf(w, "  ranks tests by predicted failure probability, and reorders the tests\n")
	fmt.Fprintf(w, "  a runner discovers so the riskiest run first.\n\n")

	fmt.Fprintf(w, "USAGE:\n")
	fmt.Fprintf(w, "  tintel [OPTIONS] COMMAND [ARGS...]\n\n")

	fmt.Fprintf(w, "COMMANDS:\n")
	for _, sc := range subcommands {
		fmt.Fprintf(w, "  %-12s %s\n", sc.name, sc.description)
	}

	fmt.Fprintf(w, "\nGLOBAL OPTIONS:\n")
	fmt.Fprintf(w, "  -h, --help         Show this help message\n")
	fmt.Fprintf(w, "  -V, --version      Show version\n")
	fmt.Fprintf(w, "  -d, --debug        Enable debug output\n")
	fmt.Fprintf(w, "  -v, --verbose      Enable verbose output (alias for --debug)\n")
	fmt.Fprintf(w, "  --log-level LEVEL  Log level (trace, debug, info, warn, error)\n")
	fmt.Fprintf(w, "  --config PATH      Path to config file\n")
	fmt.Fprintf(w, "  --db PATH          Path to SQLite database\n\n")

	fmt.Fprintf(w, "EXAMPLES:\n")
	fmt.Fprintf(w, "  # Report slow tests in a pytest log\n")
	fmt.Fprintf(w, "  tintel analyze --log-file pytest.log\n\n")

	fmt.Fprintf(w, "  # Run the suite, analyze its output and keep the timings\n")
	fmt.Fprintf(w, "  tintel analyze --exec 'pytest -v' --record\n\n")

	fmt.Fprintf(w, "  # Train on historical results and write the execution order\n")
	fmt.Fprintf(w, "  tintel prioritize --dataset data/historical_test_data/test_results.csv\n\n")

	fmt.Fprintf(w, "  # Reorder discovered test IDs (one per line) at collection time\n")
	fmt.Fprintf(w, "  pytest --collect-only -q | tintel reorder --prioritize\n\n")

	fmt.Fprintf(w, "  # Export recorded history as a training dataset\n")
	fmt.Fprintf(w, "  tintel history export --out data/historical_test_data/test_results.csv\n\n")

	fmt.Fprintf(w, "For command-specific help:\n")
	fmt.Fprintf(w, "  tintel COMMAND --help\n")
}
