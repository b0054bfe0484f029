package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	serveradapter "github.com/hylla/tikk/internal/adapters/server"
	servercommon "github.com/hylla/tikk/internal/adapters/server/common"
	"github.com/hylla/tikk/internal/adapters/storage/sqlite"
	"github.com/hylla/tikk/internal/app"
	"github.com/hylla/tikk/internal/config"
	"github.com/hylla/tikk/internal/platform"
	"github.com/hylla/tikk/internal/tui"
)

// version stores a package-level helper value.
var version = "dev"

// program represents program data used by this package.
type program interface {
	Run() (tea.Model, error)
}

// programFactory stores a package-level helper value.
var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

// nowFunc is the clock for the service and runtime logs.
var nowFunc = time.Now

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run builds the command tree and executes args against it.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return fang.Execute(ctx, root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	)
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
	jsonOut    bool
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	defaults := platform.OptionsFromEnv(platform.Options{}, os.Getenv)
	if _, set := os.LookupEnv(platform.EnvDevMode); !set {
		defaults.DevMode = version == "dev"
	}
	if strings.TrimSpace(defaults.AppName) == "" {
		defaults.AppName = platform.DefaultAppName
	}

	root := &cobra.Command{
		Use:   "tikk",
		Short: "Track time against projects and tasks",
		Long: `tikk keeps an append-only log of timer events per task and derives
time entries from it. Projects and tasks are versioned, so any past state
can be read back. Run without a command to open the timer screen.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd, flags)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to config TOML")
	pf.StringVar(&flags.dbPath, "db", "", "path to sqlite database")
	pf.StringVar(&flags.appName, "app", defaults.AppName, "application name for config/data path resolution")
	pf.BoolVar(&flags.devMode, "dev", defaults.DevMode, "use dev mode paths (<app>-dev)")
	pf.BoolVar(&flags.jsonOut, "json", false, "print JSON instead of tables")

	root.AddCommand(
		newPathsCommand(flags),
		newProjectCommand(flags),
		newTaskCommand(flags),
		newTimerCommand(flags),
		newEntryCommand(flags),
		newReportCommand(flags),
		newExportCommand(flags),
		newServeCommand(flags),
		&cobra.Command{
			Use:   "tui",
			Short: "Open the interactive timer screen",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runTUI(cmd, flags)
			},
		},
	)
	return root
}

func newPathsCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config, data, and log locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := resolvePaths(flags)
			if err != nil {
				return err
			}
			configPath, dbPath := resolveFiles(flags, paths)
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", flags.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", flags.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", configPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", dbPath)
			_, _ = fmt.Fprintf(out, "logs: %s\n", paths.LogDir)
			return nil
		},
	}
}

func resolvePaths(flags *globalFlags) (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName: flags.appName,
		DevMode: flags.devMode,
	})
}

// resolveFiles applies --config and --db over the platform defaults.
func resolveFiles(flags *globalFlags, paths platform.Paths) (configPath, dbPath string) {
	configPath = paths.ConfigPath
	if v := strings.TrimSpace(flags.configPath); v != "" {
		configPath = v
	}
	dbPath = paths.DBPath
	if v := strings.TrimSpace(flags.dbPath); v != "" {
		dbPath = v
	}
	return configPath, dbPath
}

// session is one opened store plus everything derived from config.
type session struct {
	paths      platform.Paths
	configPath string
	cfg        config.Config
	logger     *runtimeLogger
	store      *sqlite.Store
	svc        *app.Service
	api        *servercommon.AppServiceAdapter
	out        printer
}

// openSession resolves config, opens logging and the database. The caller must Close it.
func openSession(cmd *cobra.Command, flags *globalFlags, console bool) (*session, error) {
	paths, err := resolvePaths(flags)
	if err != nil {
		return nil, err
	}
	configPath, dbPath := resolveFiles(flags, paths)
	dbOverridden := dbPath != paths.DBPath || strings.TrimSpace(os.Getenv(platform.EnvDBPath)) != ""

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}

	logger, err := newRuntimeLogger(cmd.ErrOrStderr(), flags.appName, flags.devMode, paths.LogDir, cfg.Logging, nowFunc)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	logger.SetConsoleEnabled(console)
	logger.Debug("configuration loaded", "config_path", configPath, "db_path", cfg.Database.Path, "log_level", cfg.Logging.Level)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Debug("dev file logging enabled", "path", devPath)
	}

	store, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		_ = logger.Close()
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	svc := app.NewService(store, nowFunc, app.ServiceConfig{RecentLimit: cfg.Report.RecentLimit})
	return &session{
		paths:      paths,
		configPath: configPath,
		cfg:        cfg,
		logger:     logger,
		store:      store,
		svc:        svc,
		api:        servercommon.NewAppServiceAdapter(svc),
		out:        printer{w: cmd.OutOrStdout(), json: flags.jsonOut},
	}, nil
}

// Close releases the store and the log file.
func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Warn("sqlite close failed", "db_path", s.cfg.Database.Path, "err", err)
	}
	_ = s.logger.Close()
}

// withSession adapts fn into a cobra RunE that opens and closes a session around it.
func withSession(flags *globalFlags, fn func(cmd *cobra.Command, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd, flags, true)
		if err != nil {
			return err
		}
		defer s.Close()
		s.logger.Debug("command flow start", "command", cmd.CommandPath())
		if err := fn(cmd, s, args); err != nil {
			s.logger.Debug("command flow failed", "command", cmd.CommandPath(), "code", servercommon.ErrorCode(err), "err", err)
			return err
		}
		return nil
	}
}

func runTUI(cmd *cobra.Command, flags *globalFlags) error {
	// Runtime logs go to the dev file only while the screen is drawn.
	s, err := openSession(cmd, flags, false)
	if err != nil {
		return err
	}
	defer s.Close()

	m := tui.NewModel(s.svc,
		tui.WithStopOnExit(s.cfg.Timer.StopOnExit),
		tui.WithClock(nowFunc),
	)
	s.logger.Info("starting tui program loop", "stop_on_exit", s.cfg.Timer.StopOnExit)
	if _, err := programFactory(m).Run(); err != nil {
		s.logger.Error("tui program terminated with error", "err", err)
		return fmt.Errorf("run tui program: %w", err)
	}
	s.logger.Info("command flow complete", "command", "tui")
	return nil
}

func newServeCommand(flags *globalFlags) *cobra.Command {
	var (
		httpBind    string
		apiEndpoint string
		mcpEndpoint string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the MCP endpoint",
		Args:  cobra.NoArgs,
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, _ []string) error {
			serverCfg := serveradapter.Config{
				HTTPBind:       s.cfg.Server.HTTPBind,
				APIEndpoint:    s.cfg.Server.APIEndpoint,
				MCPEndpoint:    s.cfg.Server.MCPEndpoint,
				AllowedOrigins: s.cfg.Server.AllowedOrigins,
				ServerName:     flags.appName,
				ServerVersion:  version,
			}
			if cmd.Flags().Changed("http") {
				serverCfg.HTTPBind = httpBind
			}
			if cmd.Flags().Changed("api-endpoint") {
				serverCfg.APIEndpoint = apiEndpoint
			}
			if cmd.Flags().Changed("mcp-endpoint") {
				serverCfg.MCPEndpoint = mcpEndpoint
			}
			s.logger.Info("command flow start", "command", "serve", "http", serverCfg.HTTPBind)
			if err := serveCommandRunner(cmd.Context(), serverCfg, serveradapter.Dependencies{
				Service: s.api,
				Logger:  s.logger.Console(),
			}); err != nil {
				s.logger.Error("command flow failed", "command", "serve", "err", err)
				return fmt.Errorf("run serve command: %w", err)
			}
			s.logger.Info("command flow complete", "command", "serve")
			return nil
		}),
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "HTTP listen address (default from config)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "HTTP API base endpoint (default from config)")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP streamable HTTP endpoint (default from config)")
	return cmd
}

// parseID parses one positional numeric id.
func parseID(kind, raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s id %q must be a positive integer", servercommon.ErrInvalidRequest, kind, raw)
	}
	return id, nil
}
