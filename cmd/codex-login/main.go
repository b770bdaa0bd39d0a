package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/waskosky/codex/internal/authstore"
	"github.com/waskosky/codex/internal/config"
	"github.com/waskosky/codex/internal/login"
)

// Version information (set via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Global flags
var (
	configFile string
	logLevel   string
	logFormat  string
)

// Login flags
var (
	loginPort      int
	loginIssuer    string
	loginClientID  string
	loginNoBrowser bool
	loginTimeout   time.Duration
	loginHome      string
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitConfig  = 3
)

var rootCmd = &cobra.Command{
	Use:   "codex-login",
	Short: "Sign in with a browser and store the resulting credential",
	Long: `Browser-based OAuth login for the command line.

The login command starts a short-lived listener on the loopback interface,
opens the provider's sign-in page in a browser and waits for the redirect.
The authorization code is exchanged for tokens, the identity token is read
for the account's email, plan and workspace, and the credential is saved
to <home>/auth.json.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in through the browser",
	Long: `Run one interactive login.

The authorization URL is always printed to stderr so it can be opened by
hand when no browser is available (use --no-browser on remote machines).

Exit codes:
  0 = Login succeeded and the credential was saved
  1 = Login failed
  3 = Configuration error`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the saved login",
	Long:  `Print the email, plan and workspace of the saved credential. Tokens are never printed.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the saved credential",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

// overrideExitCode is set by subcommands (login, check-config) so main() can
// call os.Exit() after cobra finishes.  This avoids calling os.Exit() inside
// RunE which would bypass deferred functions.  -1 means "use default".
var overrideExitCode = -1

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Long:  `Display version, commit hash, and build date.`,
	Run:   runVersion,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate configuration file",
	Long: `Load and validate the configuration without logging in.

Environment overrides (CODEX_LOGIN_*, CODEX_HOME) are applied before
validation, exactly as for login.

Exit codes:
  0 = Configuration is valid
  3 = Configuration error`,
	RunE: runCheckConfig,
}

func init() {
	// Global flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultPath(),
		"Path to configuration file (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error) - overrides config file")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format (json, text) - overrides config file")

	loginCmd.Flags().IntVar(&loginPort, "port", -1, "Loopback port for the callback listener (0 = any free port)")
	loginCmd.Flags().StringVar(&loginIssuer, "issuer", "", "Identity provider base URL")
	loginCmd.Flags().StringVar(&loginClientID, "client-id", "", "OAuth client ID")
	loginCmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false, "Do not open a browser; only print the URL")
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", 0, "How long to wait for the browser redirect")
	loginCmd.Flags().StringVar(&loginHome, "home", "", "Directory the credential is saved in")

	// Add subcommands
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}

	// If a subcommand set a specific exit code, use it.
	// This is done outside RunE so deferred functions run properly.
	if overrideExitCode >= 0 {
		os.Exit(overrideExitCode)
	}
}

// readConfig loads the configuration file. A missing file means defaults,
// unless --config was given explicitly.
func readConfig(cmd *cobra.Command) (*config.Config, error) {
	if cmd != nil && cmd.Flags().Changed("config") {
		return config.Load(configFile)
	}
	return config.LoadOrDefault(configFile)
}

// loadConfig reads the configuration and applies the global log flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := readConfig(cmd)
	if err != nil {
		return nil, err
	}

	// Override log settings from flags if provided
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// Initialize structured logging based on config
	config.SetupLogging(&cfg.Log)
	return cfg, nil
}

// applyLoginFlags overrides configuration values with login flags that
// were set on the command line.
func applyLoginFlags(cfg *config.Config) error {
	if loginPort >= 0 {
		cfg.Login.Port = loginPort
	}
	if loginIssuer != "" {
		cfg.Issuer = loginIssuer
	}
	if loginClientID != "" {
		cfg.ClientID = loginClientID
	}
	if loginNoBrowser {
		cfg.Login.OpenBrowser = false
	}
	if loginTimeout > 0 {
		cfg.Login.CallbackTimeout = loginTimeout
	}
	if loginHome != "" {
		cfg.Home = loginHome
	}
	return cfg.Validate()
}

// runLogin performs one interactive login
func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		overrideExitCode = ExitConfig
		return nil
	}
	if err := applyLoginFlags(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		overrideExitCode = ExitConfig
		return nil
	}

	slog.Debug("starting login",
		"version", version,
		"issuer", cfg.Issuer,
		"port", cfg.Login.Port,
		"home", cfg.Home,
	)

	flow, err := login.New(login.Options{
		Issuer:          cfg.Issuer,
		ClientID:        cfg.ClientID,
		Port:            cfg.Login.Port,
		OpenBrowser:     cfg.Login.OpenBrowser,
		Home:            cfg.Home,
		CallbackTimeout: cfg.Login.CallbackTimeout,
		ExchangeTimeout: cfg.Login.ExchangeTimeout,
		Output:          os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to start login: %w", err)
	}

	// Ctrl-C releases the callback port before exiting
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cred, err := flow.Run(ctx)
	if err != nil {
		var ferr *login.FailedError
		if errors.As(err, &ferr) {
			fmt.Fprintln(os.Stderr, ferr.UserMessage())
			overrideExitCode = ExitError
			return nil
		}
		return err
	}

	fmt.Fprintf(os.Stderr, "Successfully logged in as %s (%s plan).\n", cred.Email, cred.PlanType)
	return nil
}

// runStatus prints the saved login without revealing tokens
func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		overrideExitCode = ExitConfig
		return nil
	}

	store := &authstore.FileStore{Home: cfg.Home}
	cred, err := store.Load()
	if errors.Is(err, authstore.ErrNotFound) {
		fmt.Println("Not logged in")
		overrideExitCode = ExitError
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println("Logged in")
	fmt.Printf("  Email:        %s\n", cred.Email)
	fmt.Printf("  Plan:         %s\n", cred.PlanType)
	fmt.Printf("  Workspace:    %s\n", cred.Tokens.AccountID)
	fmt.Printf("  Issuer:       %s\n", cred.Issuer)
	fmt.Printf("  Last refresh: %s\n", cred.LastRefresh.Format(time.RFC3339))
	fmt.Printf("  File:         %s\n", store.Path())
	return nil
}

// runLogout removes the saved credential
func runLogout(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		overrideExitCode = ExitConfig
		return nil
	}

	store := &authstore.FileStore{Home: cfg.Home}
	if err := store.Delete(); err != nil {
		return err
	}

	fmt.Println("Logged out")
	return nil
}

// runVersion displays version information
func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("codex-login version %s\n", version)
	fmt.Printf("  Commit:     %s\n", commit)
	fmt.Printf("  Build date: %s\n", buildDate)
	fmt.Printf("  Go version: %s\n", getGoVersion())
}

// runCheckConfig validates the configuration
func runCheckConfig(cmd *cobra.Command, args []string) error {
	fmt.Printf("Checking configuration: %s\n\n", configFile)

	// Load configuration
	cfg, err := readConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed:\n")
		fmt.Fprintf(os.Stderr, "   %v\n", err)
		overrideExitCode = ExitConfig
		return nil // exit code handled via overrideExitCode
	}

	fmt.Println("✅ Configuration is valid")
	fmt.Println()
	fmt.Println("Configuration summary:")
	fmt.Printf("  Issuer:           %s\n", cfg.Issuer)
	fmt.Printf("  Client ID:        %s\n", cfg.ClientID)
	fmt.Printf("  Home:             %s\n", cfg.Home)
	fmt.Printf("  Callback Port:    %d\n", cfg.Login.Port)
	fmt.Printf("  Open Browser:     %v\n", cfg.Login.OpenBrowser)
	fmt.Printf("  Callback Timeout: %s\n", cfg.Login.CallbackTimeout)
	fmt.Printf("  Exchange Timeout: %s\n", cfg.Login.ExchangeTimeout)
	fmt.Printf("  Log Level:        %s\n", cfg.Log.Level)
	fmt.Printf("  Log Format:       %s\n", cfg.Log.Format)

	return nil
}

// getGoVersion returns the Go version used to build the binary
func getGoVersion() string {
	return runtime.Version()
}
