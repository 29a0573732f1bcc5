package gist

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"gistrun/internal/cache"
	"gistrun/internal/monitor"
	"gistrun/internal/remote"
)

// Cache resource tags.
const (
	TagGists  = "gists"
	TagScript = "script"
)

// Config controls how listings are fetched and cached.
type Config struct {
	APIURL   string
	PerPage  int
	MaxPages int // pages Resolve searches; 1 keeps the single-page behavior
	MaxAge   time.Duration
}

// DefaultConfig mirrors config.DefaultConfig's github section.
func DefaultConfig() Config {
	return Config{
		APIURL:   "https://api.github.com",
		PerPage:  100,
		MaxPages: 1,
		MaxAge:   cache.DefaultMaxAge,
	}
}

// Script is a downloaded gist file. File.Filename is the published name,
// which may differ from the name that was asked for when it matched by stem.
type Script struct {
	File File
	Text string
}

// Resolver finds and downloads a user's gist files.
type Resolver struct {
	client *remote.Client
	cache  cache.Cache
	cfg    Config
	tracer *monitor.Tracer

	listing func(ctx context.Context, args ...string) (string, error)
}

// NewResolver returns a Resolver that serves listings and script bodies
// through c.
func NewResolver(client *remote.Client, c cache.Cache, cfg Config, tracer *monitor.Tracer) *Resolver {
	def := DefaultConfig()
	if cfg.APIURL == "" {
		cfg.APIURL = def.APIURL
	}
	if cfg.PerPage < 1 {
		cfg.PerPage = def.PerPage
	}
	if cfg.MaxPages < 1 {
		cfg.MaxPages = def.MaxPages
	}
	r := &Resolver{
		client: client,
		cache:  c,
		cfg:    cfg,
		tracer: tracer,
	}
	r.listing = cache.Memoize(c, TagGists, cfg.MaxAge, r.downloadListing)
	return r
}

// ListGists returns one page (1-based) of username's gists. Page 1 is cached
// as gists__<user>, later pages as gists__<user>__<page>.
func (r *Resolver) ListGists(ctx context.Context, username string, page int) ([]Gist, error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be >= 1, got %d", page)
	}
	args := []string{username}
	if page > 1 {
		args = append(args, strconv.Itoa(page))
	}
	text, err := r.listing(ctx, args...)
	if err != nil {
		return nil, err
	}
	gists, err := ParseListing(text)
	if err != nil {
		return nil, fmt.Errorf("listing %s page %d: %w", username, page, err)
	}
	return gists, nil
}

// Resolve searches up to the configured number of listing pages.
func (r *Resolver) Resolve(ctx context.Context, username, filename string) (File, error) {
	return r.ResolvePages(ctx, username, filename, r.cfg.MaxPages)
}

// ResolvePages returns the first file matching filename in username's gists,
// reading at most maxPages pages. It stops early on a short page.
func (r *Resolver) ResolvePages(ctx context.Context, username, filename string, maxPages int) (File, error) {
	ctx, span := r.tracer.StartSpan(ctx, "resolve",
		monitor.AttrUser.String(username),
		monitor.AttrFile.String(filename),
	)
	defer span.End()

	if maxPages < 1 {
		maxPages = 1
	}
	searched := 0
	for page := 1; page <= maxPages; page++ {
		gists, err := r.ListGists(ctx, username, page)
		if err != nil {
			span.RecordError(err)
			return File{}, err
		}
		searched = page
		if f, ok := FindFile(gists, filename); ok {
			log.Debug().
				Str("user", username).
				Str("file", f.Filename).
				Int("page", page).
				Msg("resolved gist file")
			return f, nil
		}
		if len(gists) < r.cfg.PerPage {
			break
		}
	}
	return File{}, &NotFoundError{Username: username, Filename: filename, Pages: searched}
}

// FetchScript resolves ref against the (cached) listing and returns the
// matched file with its text, cached as script__<user>__<filename as given>.
func (r *Resolver) FetchScript(ctx context.Context, ref Reference) (Script, error) {
	f, err := r.Resolve(ctx, ref.Username, ref.Filename)
	if err != nil {
		return Script{}, err
	}
	if f.RawURL == "" {
		return Script{}, fmt.Errorf("%w: file %q has no raw_url", ErrMalformedListing, f.Filename)
	}

	key := cache.Key(TagScript, ref.Username, ref.Filename)
	text, err := r.cache.Fetch(ctx, key, r.cfg.MaxAge, func(ctx context.Context) (string, error) {
		return r.downloadScript(ctx, f.RawURL)
	})
	if err != nil {
		return Script{}, err
	}
	return Script{File: f, Text: text}, nil
}

func (r *Resolver) downloadListing(ctx context.Context, args ...string) (string, error) {
	username := args[0]
	page := 1
	if len(args) > 1 {
		p, err := strconv.Atoi(args[1])
		if err != nil {
			return "", fmt.Errorf("bad page %q: %w", args[1], err)
		}
		page = p
	}

	ctx, span := r.tracer.StartSpan(ctx, "list_gists",
		monitor.AttrUser.String(username),
		monitor.AttrPage.Int(page),
	)
	defer span.End()

	endpoint := strings.TrimRight(r.cfg.APIURL, "/") + "/users/" + url.PathEscape(username) + "/gists"
	resp, err := r.client.Get(ctx, endpoint, map[string]any{
		"page":     page,
		"per_page": r.cfg.PerPage,
	})
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", statusError(endpoint, resp)
	}
	return resp.Text, nil
}

func (r *Resolver) downloadScript(ctx context.Context, rawURL string) (string, error) {
	ctx, span := r.tracer.StartSpan(ctx, "download", monitor.AttrURL.String(rawURL))
	defer span.End()

	resp, err := r.client.Get(ctx, rawURL, nil)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", statusError(rawURL, resp)
	}
	return resp.Text, nil
}

func statusError(u string, resp *remote.Response) *StatusError {
	se := &StatusError{URL: u, Status: resp.Status, Reason: resp.Reason}
	if m, ok := resp.JSON.(map[string]any); ok {
		if msg, ok := m["message"].(string); ok {
			se.Message = msg
		}
	}
	return se
}
