package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/backlogdeck/bld/internal/backlog"
	"github.com/backlogdeck/bld/internal/engine"
	"github.com/backlogdeck/bld/internal/output"
	"github.com/backlogdeck/bld/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui         *output.UI
	dataStore  store.Store
	syncEngine *engine.Engine

	verbose bool
	dryRun  bool

	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "bld",
	Short: "Backlog desk - your assigned issues, bucketed and cached",
	Long: `bld keeps a local, queryable view of your assigned Backlog issues.

Issues are partitioned into past / today / this-week / no-due-date
buckets, cached for ten minutes, and kept usable through transient
failures. Status changes, due-date edits, and new issues go straight
back to Backlog.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return issuesRun(false, false)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/bld/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "bld")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BLD")
	viper.AutomaticEnv()

	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "bld")

	viper.SetDefault("space_domain", "")
	viper.SetDefault("api_key", "")
	viper.SetDefault("host", "backlog.com")
	viper.SetDefault("issue_fetch_limit", backlog.DefaultFetchLimit)
	viper.SetDefault("excluded_projects", []string{})
	viper.SetDefault("allowed_hosts", []string{"backlog.com", "backlog.jp"})
	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "bld.db"))
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Store and engine initialize lazily — only when commands actually
	// need them. This allows config/version commands to run without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getEngine returns the shared sync engine, initializing it on first call.
func getEngine() (*engine.Engine, error) {
	if syncEngine != nil {
		return syncEngine, nil
	}

	s, err := getStore()
	if err != nil {
		return nil, err
	}

	syncEngine = engine.New(
		viperConfig{},
		s,
		engine.WithPermissionChecker(hostChecker{allowed: viper.GetStringSlice("allowed_hosts")}),
	)
	return syncEngine, nil
}

// viperConfig adapts viper to engine.ConfigProvider.
type viperConfig struct{}

func (viperConfig) AuthConfig(ctx context.Context) (*backlog.AuthConfig, bool) {
	spaceDomain := viper.GetString("space_domain")
	apiKey := viper.GetString("api_key")
	if spaceDomain == "" || apiKey == "" {
		return nil, false
	}

	excluded := make(map[string]struct{})
	for _, p := range viper.GetStringSlice("excluded_projects") {
		if p = strings.TrimSpace(p); p != "" {
			excluded[p] = struct{}{}
		}
	}

	return &backlog.AuthConfig{
		SpaceDomain:      spaceDomain,
		APIKey:           apiKey,
		Host:             viper.GetString("host"),
		IssueFetchLimit:  viper.GetInt("issue_fetch_limit"),
		ExcludedProjects: excluded,
	}, true
}

// hostChecker allows remote access only to known Backlog hosts,
// standing in for the browser extension's origin permission gate.
type hostChecker struct {
	allowed []string
}

func (h hostChecker) Check(ctx context.Context, origin string) error {
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	host := u.Hostname()
	for _, allowed := range h.allowed {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return fmt.Errorf("access to %s is not permitted; add its host to allowed_hosts in config", origin)
}
