// dmenud is a fast application launcher for freedesktop systems. It
// collects desktop entries from the XDG search path, offers them through
// an external menu program such as dmenu and launches the selection,
// optionally tracking usage frequency and serving repeated requests as a
// daemon.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chess10kp/dmenud/internal/apps"
	"github.com/chess10kp/dmenud/internal/config"
	"github.com/chess10kp/dmenud/internal/daemon"
	"github.com/chess10kp/dmenud/internal/desktop"
	"github.com/chess10kp/dmenud/internal/history"
	"github.com/chess10kp/dmenud/internal/logging"
	"github.com/chess10kp/dmenud/internal/wmipc"
	"github.com/chess10kp/dmenud/internal/xdg"
)

type options struct {
	menuCommand       string
	terminal          string
	wrapper           string
	noExec            bool
	noGeneric         bool
	caseInsensitive   bool
	usageLog          string
	waitOn            string
	displayBinary     bool
	displayBinaryBase bool
	useXDGDE          bool
	i3IPC             bool
	skipI3Check       bool
	fuzzyMatch        bool
	quirks            string
	configPath        string

	verbose      int
	logLevel     string
	logFile      string
	logFileLevel string
}

func main() {
	opts := &options{}

	root := &cobra.Command{
		Use:           "dmenud",
		Short:         "A fast desktop-entry launcher for dmenu-style menus",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&opts.menuCommand, "dmenu", "d", "dmenu -i", "command used to invoke the menu program")
	flags.StringVarP(&opts.terminal, "term", "t", "i3-sensible-terminal", "terminal emulator used for terminal apps")
	flags.StringVar(&opts.wrapper, "wrapper", "", "wrapper command the launched application is passed through")
	flags.BoolVar(&opts.noExec, "no-exec", false, "print the selected command instead of executing it")
	flags.BoolVar(&opts.noGeneric, "no-generic", false, "do not append the generic name of desktop entries")
	flags.BoolVarP(&opts.caseInsensitive, "case-insensitive", "i", false, "match display names case-insensitively")
	flags.StringVar(&opts.usageLog, "usage-log", "", "usage log file (enables sorting by usage frequency)")
	flags.StringVar(&opts.waitOn, "wait-on", "", "run as a daemon serving menu requests from this FIFO")
	flags.BoolVarP(&opts.displayBinary, "display-binary", "b", false, "display the binary name after each entry")
	flags.BoolVarP(&opts.displayBinaryBase, "display-binary-base", "f", false, "display the basename of the binary after each entry")
	flags.BoolVarP(&opts.useXDGDE, "use-xdg-de", "x", false, "read $XDG_CURRENT_DESKTOP for entry visibility")
	flags.BoolVarP(&opts.i3IPC, "i3-ipc", "I", false, "execute desktop entries through the window-manager IPC")
	flags.BoolVar(&opts.skipI3Check, "skip-i3-exec-check", false, "disable the check for an i3 wrapper command")
	flags.BoolVar(&opts.fuzzyMatch, "fuzzy", false, "fuzzy-match the menu choice before treating it as a custom command")
	flags.StringVar(&opts.quirks, "desktop-file-quirks", "all", "tolerated Exec violations: none, wine, spaces or all")
	flags.StringVar(&opts.configPath, "config", "", "config file (default ~/.config/dmenud/config.toml)")
	flags.CountVarP(&opts.verbose, "verbose", "v", "be more verbose (repeatable)")
	flags.StringVar(&opts.logLevel, "log-level", "", "stderr log level: DEBUG, INFO, WARNING or ERROR")
	flags.StringVar(&opts.logFile, "log-file", "", "also log to this file")
	flags.StringVar(&opts.logFileLevel, "log-file-level", "INFO", "log file level: DEBUG, INFO, WARNING or ERROR")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyConfigFile fills flag defaults from the TOML config file without
// overriding anything given on the command line.
func applyConfigFile(cmd *cobra.Command, opts *options, file config.File) {
	set := func(flag string, apply func()) {
		if !cmd.Flags().Changed(flag) {
			apply()
		}
	}
	if file.Menu != "" {
		set("dmenu", func() { opts.menuCommand = file.Menu })
	}
	if file.Terminal != "" {
		set("term", func() { opts.terminal = file.Terminal })
	}
	if file.Wrapper != "" {
		set("wrapper", func() { opts.wrapper = file.Wrapper })
	}
	if file.UsageLog != "" {
		set("usage-log", func() { opts.usageLog = file.UsageLog })
	}
	if file.WaitOn != "" {
		set("wait-on", func() { opts.waitOn = file.WaitOn })
	}
	if file.Quirks != "" {
		set("desktop-file-quirks", func() { opts.quirks = file.Quirks })
	}
	if file.LogLevel != "" {
		set("log-level", func() { opts.logLevel = file.LogLevel })
	}
	set("no-generic", func() { opts.noGeneric = opts.noGeneric || file.NoGeneric })
	set("case-insensitive", func() { opts.caseInsensitive = opts.caseInsensitive || file.CaseInsensitive })
	set("use-xdg-de", func() { opts.useXDGDE = opts.useXDGDE || file.UseXDGDE })
	set("fuzzy", func() { opts.fuzzyMatch = opts.fuzzyMatch || file.Fuzzy })
}

func setupLogging(opts *options) (*logging.Logger, error) {
	level := logging.LevelWarn
	switch opts.verbose {
	case 0:
	case 1:
		level = logging.LevelInfo
	default:
		level = logging.LevelDebug
	}
	if opts.logLevel != "" {
		parsed, err := logging.ParseLevel(opts.logLevel)
		if err != nil {
			return nil, err
		}
		level = parsed
	}
	logger := logging.New(level)

	if opts.logFile != "" {
		fileLevel, err := logging.ParseLevel(opts.logFileLevel)
		if err != nil {
			return nil, err
		}
		if err := logger.AddFile(opts.logFile, fileLevel); err != nil {
			return nil, err
		}
	}
	return logger, nil
}

func run(cmd *cobra.Command, opts *options) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}

	configPath := opts.configPath
	if configPath == "" {
		configPath = config.DefaultFilePath(env.Home)
	}
	file, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	applyConfigFile(cmd, opts, file)

	logger, err := setupLogging(opts)
	if err != nil {
		return err
	}
	defer logger.Close()

	quirks, err := desktop.ParseQuirks(opts.quirks)
	if err != nil {
		return err
	}

	if !opts.skipI3Check && strings.Contains(opts.wrapper, "i3") {
		logger.Errorf("Usage of an i3 wrapper has been detected; use the -I flag instead " +
			"(--skip-i3-exec-check overrides this check, but its usage is discouraged)")
		return errors.New("i3 wrapper rejected")
	}

	var ipc *wmipc.Conn
	if opts.i3IPC {
		ipc, err = wmipc.Resolve(env.SwaySock, env.I3Sock, logger)
		if err != nil {
			return err
		}
	}

	var desktopEnvs []string
	if opts.useXDGDE {
		desktopEnvs = env.DesktopEnvironments()
		logger.Infof("Found %d desktop environments in $XDG_CURRENT_DESKTOP: %s",
			len(desktopEnvs), strings.Join(desktopEnvs, ", "))
	} else {
		logger.Infof("Desktop environment detection is turned off (-x has not been given)")
	}

	locale := xdg.NewLocaleSuffixes(env.Locale())
	logger.Debugf("Locale suffixes: %s", locale)

	roots := xdg.SearchPath(env.DataHome, env.DataDirs, env.Home, logger)
	logger.Infof("Found %d directories in search path: %s", len(roots), strings.Join(roots, ", "))

	formatter := apps.FormatName
	if opts.displayBinary {
		formatter = apps.FormatNameBinary
	}
	if opts.displayBinaryBase {
		formatter = apps.FormatNameBaseBinary
	}

	parser := desktop.NewParser(locale, quirks, logger)
	manager := apps.NewManager(parser, formatter, desktopEnvs,
		!opts.noGeneric, opts.caseInsensitive, logger)
	fileCount := manager.Ingest(roots)

	// Shown unconditionally, like it always has been; the log copy is
	// for users running with a log file.
	fmt.Fprintf(os.Stderr, "Read %d .desktop files, found %d apps.\n", fileCount, manager.Count())
	logger.Infof("Read %d .desktop files, found %d apps.", fileCount, manager.Count())

	if logger.DebugEnabled() {
		if err := manager.CheckConsistency(); err != nil {
			return fmt.Errorf("catalog consistency check failed: %w", err)
		}
	}

	var hist *history.Manager
	if opts.usageLog != "" {
		hist, err = history.Open(opts.usageLog, logger)
		if errors.Is(err, history.ErrVersion0) {
			logger.Warnf("History file is using the old format, converting")
			hist, err = history.ConvertV0(opts.usageLog, manager.VisibleExecIndex(), logger)
		}
		if err != nil {
			logger.Warnf("Continuing without history: %v", err)
			hist = nil
		}
	}

	disp := &daemon.Dispatcher{
		Apps:        manager,
		Hist:        hist,
		MenuCommand: opts.menuCommand,
		Shell:       env.Shell,
		Term:        opts.terminal,
		Wrapper:     opts.wrapper,
		NoExec:      opts.noExec,
		Fuzzy:       opts.fuzzyMatch,
		IPC:         ipc,
		Quirks:      quirks,
		Logger:      logger,
	}
	disp.RebuildMapping()

	if opts.waitOn != "" {
		return disp.RunDaemon(opts.waitOn, roots)
	}
	return disp.RunMenu(true)
}
