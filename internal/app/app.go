// Package app wires the fetch -> cache -> execute pipeline from configuration.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"

	"gistrun/internal/cache"
	"gistrun/internal/config"
	"gistrun/internal/gist"
	"gistrun/internal/monitor"
	"gistrun/internal/remote"
	"gistrun/internal/runner"
)

// App runs published scripts. One App serves one invocation.
type App struct {
	cfg      *config.Config
	cache    *cache.DiskCache
	resolver *gist.Resolver
	runner   *runner.Runner
	metrics  *monitor.Metrics
	tracer   *monitor.Tracer
}

type options struct {
	httpClient *http.Client
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
}

// Option configures an App.
type Option func(*options)

// WithHTTPClient replaces the HTTP client used for GitHub requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithStdio sets the streams the executed script inherits.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(o *options) {
		o.stdin, o.stdout, o.stderr = stdin, stdout, stderr
	}
}

// New builds an App from cfg.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o := options{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	metrics := monitor.NewMetrics()
	tracer := monitor.NewTracer()

	dc, err := cache.NewDiskCache(cfg.Cache.Dir,
		cache.WithMetrics(metrics),
		cache.WithTracer(tracer),
	)
	if err != nil {
		return nil, err
	}

	clientOpts := []remote.Option{
		remote.WithUserAgent(cfg.GitHub.UserAgent),
		remote.WithHeader("Accept", "application/vnd.github+json"),
		remote.WithMetrics(metrics),
	}
	if cfg.GitHub.Token != "" {
		clientOpts = append(clientOpts, remote.WithHeader("Authorization", "Bearer "+cfg.GitHub.Token))
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, remote.WithHTTPClient(o.httpClient))
	}
	client := remote.NewClient(cfg.GitHub.Timeout, clientOpts...)

	resolver := gist.NewResolver(client, dc, gist.Config{
		APIURL:   cfg.GitHub.APIURL,
		PerPage:  cfg.GitHub.PerPage,
		MaxPages: cfg.GitHub.MaxPages,
		MaxAge:   cfg.Cache.MaxAge,
	}, tracer)

	r := runner.New(
		runner.WithTempDir(cfg.Runner.TempDir),
		runner.WithStdio(o.stdin, o.stdout, o.stderr),
		runner.WithMetrics(metrics),
		runner.WithTracer(tracer),
	)

	return &App{
		cfg:      cfg,
		cache:    dc,
		resolver: resolver,
		runner:   r,
		metrics:  metrics,
		tracer:   tracer,
	}, nil
}

// Run parses script as user/filename, fetches it (through the cache) and
// executes it with args. The returned code is the child's exit status.
func (a *App) Run(ctx context.Context, script string, args []string) (int, error) {
	ref, err := gist.ParseReference(script)
	if err != nil {
		return 1, err
	}

	logger := log.With().
		Str("user", ref.Username).
		Str("file", ref.Filename).
		Logger()

	ctx, span := a.tracer.StartSpan(ctx, "invoke",
		monitor.AttrUser.String(ref.Username),
		monitor.AttrFile.String(ref.Filename),
	)
	defer span.End()

	fetched, err := a.resolver.FetchScript(ctx, ref)
	if err != nil {
		span.RecordError(err)
		return 1, fmt.Errorf("fetching %s: %w", ref, err)
	}
	logger.Debug().
		Str("gist_file", fetched.File.Filename).
		Int("bytes", len(fetched.Text)).
		Msg("script fetched")

	if _, err := a.runner.CleanupOrphaned(runner.OrphanAge); err != nil {
		logger.Debug().Err(err).Msg("skipping orphaned script cleanup")
	}

	res, err := a.runner.Run(ctx, runner.Request{
		Script: fetched.Text,
		Name:   fetched.File.Filename,
		Args:   args,
	})
	if err != nil {
		span.RecordError(err)
		code := 1
		if res != nil {
			code = res.ExitCode
		}
		return code, fmt.Errorf("running %s: %w", ref, err)
	}
	span.SetAttributes(monitor.AttrExitCode.Int(res.ExitCode))
	return res.ExitCode, nil
}

// List writes every file of username's gists to w, one per line, searching
// the given number of listing pages.
func (a *App) List(ctx context.Context, username string, pages int, w io.Writer) error {
	if err := gist.ValidateUsername(username); err != nil {
		return err
	}
	if pages < 1 {
		pages = a.cfg.GitHub.MaxPages
	}
	for page := 1; page <= pages; page++ {
		gists, err := a.resolver.ListGists(ctx, username, page)
		if err != nil {
			return err
		}
		for _, g := range gists {
			for _, f := range g.Files {
				if _, err := fmt.Fprintf(w, "%s/%s\t%s\n", username, f.Filename, g.Description); err != nil {
					return err
				}
			}
		}
		if len(gists) < a.cfg.GitHub.PerPage {
			break
		}
	}
	return nil
}

// Cache exposes the disk cache for maintenance commands.
func (a *App) Cache() *cache.DiskCache {
	return a.cache
}

// Close flushes metrics to the configured textfile.
func (a *App) Close() error {
	return a.metrics.WriteTextfile(a.cfg.Metrics.Textfile)
}
