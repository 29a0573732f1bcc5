package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gistrun/internal/app"
	"gistrun/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type cli struct {
	configPath string
	debug      bool
	cacheDir   string
	maxAge     time.Duration
	refresh    bool
	pages      int

	stdin          io.Reader
	stdout, stderr io.Writer

	// exitCode is the script's status once the root command has run it.
	exitCode int
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "gistrun: %v\n", err)
		if c.exitCode != 0 {
			return c.exitCode
		}
		return 1
	}
	return c.exitCode
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gistrun <user/script> [args...]",
		Short: "Run a script published in a user's GitHub gists",
		Long: `Fetch user/script from the user's public gists, cache it locally and run it.

The script name matches a gist file with or without its extension, so
"alice/deploy" runs alice's deploy.sh. Everything after the reference is
passed to the script unchanged.`,
		Args:              cobra.MinimumNArgs(1),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setupLogging,
		RunE:              c.runScript,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	// Flags after the script reference belong to the script.
	root.Flags().SetInterspersed(false)

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "config file (default "+config.UserConfigPath()+")")
	pf.BoolVar(&c.debug, "debug", false, "enable debug logging (also GISTRUN_DEBUG=1)")
	pf.StringVar(&c.cacheDir, "cache-dir", "", "cache directory (overrides config and GISTRUN_CACHE_DIR)")
	pf.DurationVar(&c.maxAge, "max-age", 0, "reuse cached entries younger than this (default from config)")
	pf.BoolVar(&c.refresh, "refresh", false, "ignore cached entries and fetch again")
	pf.IntVar(&c.pages, "pages", 0, "number of gist listing pages to search (default from config)")

	root.AddCommand(c.listCmd(), c.cacheCmd())
	return root
}

func (c *cli) setupLogging(*cobra.Command, []string) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: c.stderr, TimeFormat: time.RFC3339})

	level := zerolog.WarnLevel
	if c.debug || os.Getenv("GISTRUN_DEBUG") != "" {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

// loadConfig layers the command-line flags over the config file and
// environment.
func (c *cli) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadDefault(c.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("cache-dir") {
		cfg.Cache.Dir = c.cacheDir
	}
	if flags.Changed("max-age") {
		cfg.Cache.MaxAge = c.maxAge
	}
	if c.refresh {
		cfg.Cache.MaxAge = 0
	}
	if flags.Changed("pages") {
		cfg.GitHub.MaxPages = c.pages
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *cli) newApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, app.WithStdio(c.stdin, c.stdout, c.stderr))
}

func (c *cli) closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to write metrics")
	}
}

func (c *cli) runScript(cmd *cobra.Command, args []string) error {
	a, err := c.newApp(cmd)
	if err != nil {
		return err
	}
	defer c.closeApp(a)

	code, err := a.Run(cmd.Context(), args[0], args[1:])
	c.exitCode = code
	return err
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <user>",
		Short: "List the files in a user's gists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd)
			if err != nil {
				return err
			}
			defer c.closeApp(a)
			return a.List(cmd.Context(), args[0], 0, c.stdout)
		},
	}
}

func (c *cli) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the local cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "path",
			Short: "Print the cache directory",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := c.newApp(cmd)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(c.stdout, a.Cache().Root())
				return err
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every cached listing and script",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := c.newApp(cmd)
				if err != nil {
					return err
				}
				n, err := a.Cache().Clear()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(c.stdout, "removed %d cached entries from %s\n", n, a.Cache().Root())
				return err
			},
		},
	)
	return cmd
}
