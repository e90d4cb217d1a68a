package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/brattlof/userboard/internal/api"
	"github.com/brattlof/userboard/internal/app"
	"github.com/brattlof/userboard/internal/app/config"
	"github.com/brattlof/userboard/internal/app/logging"
	"github.com/brattlof/userboard/internal/dev"
	"github.com/brattlof/userboard/internal/templates"
	"github.com/brattlof/userboard/pkg/plugin"
	"github.com/brattlof/userboard/plugins"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	defaultAPIBaseURL = "http://localhost:8080"
)

const devBuildPackage = "./cmd/ub"

var rootCmd = &cobra.Command{
	Use:          "ub",
	Short:        "userboard - live user directory backed by the users API",
	Version:      version,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runServer(cfg, false)
	},
}

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Start the dashboard with live reload",
	Long: `Start the dashboard server and watch source directories.
A change to a .go or .templ file rebuilds ./cmd/ub and restarts the server
in place. A change to a .yaml, .css or .js file reloads every open browser.
Dev-hook plugins are notified of every change.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Logging.Level == "info" {
			cfg.Logging.Level = "debug"
		}
		cfg.Logging.Format = "text"
		return runServer(cfg, true)
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Fetch the user list from the API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		jsonOutput, _ := cmd.Flags().GetBool("json")

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.APITimeout())
		defer cancel()

		users, err := newClient(cfg).Users(ctx)
		if err != nil {
			return fmt.Errorf("fetch users: %w", err)
		}

		if jsonOutput {
			return printJSON(cmd, map[string]interface{}{"users": users, "total": len(users)})
		}

		out := cmd.OutOrStdout()
		if len(users) == 0 {
			fmt.Fprintln(out, "No users found")
			return nil
		}

		locale := templates.ParseLocale(cfg.Rendering.Locale)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tEMAIL\tAGE\tCOUNTRY\tJOINED")
		fmt.Fprintln(w, "--\t----\t-----\t---\t-------\t------")
		for _, u := range users {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
				u.ID, u.Name, u.Email, u.Age, u.Country, templates.JoinedDate(u, locale))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nTotal Users: %d\n", len(users))
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the users API health endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		jsonOutput, _ := cmd.Flags().GetBool("json")

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.APITimeout())
		defer cancel()

		start := time.Now()
		health, err := newClient(cfg).Health(ctx)
		if err != nil {
			return fmt.Errorf("health check against %s: %w", cfg.API.BaseURL, err)
		}

		if jsonOutput {
			return printJSON(cmd, health)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "API Status: %s\nUptime: %s\nLatency: %s\n",
			health.Status, health.Uptime, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "userboard CLI v%s\n", version)
		fmt.Fprintf(out, "  Commit: %s\n", commit)
		fmt.Fprintf(out, "  Built:  %s\n", date)
		fmt.Fprintf(out, "  API:    %s\n", defaultAPIBaseURL)
	},
}

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Inspect compiled-in plugins",
}

var pluginListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available plugins and whether they are enabled",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		jsonOutput, _ := cmd.Flags().GetBool("json")

		enabled := make(map[string]bool)
		for _, name := range cfg.Plugins.Enabled {
			enabled[name] = true
		}

		type row struct {
			*plugin.Info
			Enabled bool `json:"enabled"`
		}
		var rows []row
		for _, name := range sortedNames(plugins.Builtin()) {
			info := plugin.Describe(plugins.Builtin()[name]())
			rows = append(rows, row{Info: info, Enabled: enabled[name]})
		}

		if jsonOutput {
			return printJSON(cmd, map[string]interface{}{"plugins": rows})
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tVERSION\tENABLED\tPRIORITY\tHOOKS")
		fmt.Fprintln(w, "----\t-------\t-------\t--------\t-----")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%v\t%d\t%s\n", r.Name, r.Version, r.Enabled, r.Priority, joinHooks(r.Hooks))
		}
		return w.Flush()
	},
}

var pluginInspectCmd = &cobra.Command{
	Use:   "inspect [plugin-name]",
	Short: "Show detailed plugin information",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		name := args[0]

		factory, ok := plugins.Builtin()[name]
		if !ok {
			return fmt.Errorf("plugin %q not found", name)
		}
		info := plugin.Describe(factory())
		info.Config = cfg.Plugins.Config[name]

		enabled := false
		for _, n := range cfg.Plugins.Enabled {
			if n == name {
				enabled = true
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Name: %s\n", info.Name)
		fmt.Fprintf(out, "Version: %s\n", info.Version)
		fmt.Fprintf(out, "Description: %s\n", info.Description)
		fmt.Fprintf(out, "Enabled: %v\n", enabled)
		fmt.Fprintf(out, "Priority: %d\n", info.Priority)

		if len(info.Hooks) > 0 {
			fmt.Fprintln(out, "\nHooks:")
			for _, h := range info.Hooks {
				fmt.Fprintf(out, "  - %s\n", h)
			}
		}

		if len(info.Config) > 0 {
			fmt.Fprintln(out, "\nConfiguration:")
			for _, k := range sortedNames(info.Config) {
				fmt.Fprintf(out, "  %s: %v\n", k, info.Config[k])
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().String("api", "", "Users API base URL (overrides config)")

	for _, cmd := range []*cobra.Command{serveCmd, devCmd} {
		cmd.Flags().IntP("port", "p", 0, "Port to listen on (overrides config)")
	}
	usersCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	healthCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	pluginListCmd.Flags().BoolP("json", "j", false, "Output as JSON")

	pluginCmd.AddCommand(pluginListCmd)
	pluginCmd.AddCommand(pluginInspectCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(devCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(pluginCmd)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath, config.WithAPIBaseURL(defaultAPIBaseURL))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if baseURL, _ := cmd.Flags().GetString("api"); baseURL != "" {
		cfg.API.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if cmd.Flags().Lookup("port") != nil {
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.App.Port = port
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newClient(cfg *config.Config) *api.Client {
	return api.NewClient(cfg.API.BaseURL,
		api.WithTimeout(cfg.APITimeout()),
		api.WithUserAgent(cfg.API.UserAgent),
	)
}

func runServer(cfg *config.Config, watch bool) error {
	logger := logging.New(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{
		Version: version,
		Plugins: plugins.Builtin(),
	})
	if err != nil {
		return err
	}

	if !watch {
		return a.Run(ctx)
	}

	restart := make(chan string, 1)
	session, err := dev.Start(ctx, dev.Options{
		Dirs:     cfg.Dev.Watch,
		Notifier: a.Hub(),
		Hooks:    a.Plugins().DevHooks(),
		Builder:  dev.NewBuilder(devBuildPackage, filepath.Join(os.TempDir(), "ub-dev"), nil, logger),
		OnRebuilt: func(binary string) {
			select {
			case restart <- binary:
			default:
			}
		},
		Logger: logger,
	})
	if err != nil {
		logger.Warn("File watcher disabled", "error", err)
		return a.Run(ctx)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(runCtx) }()

	select {
	case err := <-done:
		session.Close()
		return err
	case binary := <-restart:
		cancel()
		err := <-done
		session.Close()
		if err != nil {
			return err
		}
		logger.Info("Restarting", "binary", binary)
		return syscall.Exec(binary, append([]string{binary}, os.Args[1:]...), os.Environ())
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func joinHooks(hooks []plugin.HookType) string {
	names := make([]string, len(hooks))
	for i, h := range hooks {
		names[i] = string(h)
	}
	return strings.Join(names, ", ")
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
