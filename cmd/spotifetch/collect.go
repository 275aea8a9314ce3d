package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"spotifetch/pkg/auth"
	"spotifetch/pkg/config"
	errs "spotifetch/pkg/errors"
	"spotifetch/pkg/export"
	"spotifetch/pkg/logger"
	"spotifetch/pkg/metrics"
	"spotifetch/pkg/retry"
	"spotifetch/pkg/spotify"
	"spotifetch/pkg/ui"
)

var (
	// Collect command flags
	profile      string
	clientID     string
	clientSecret string
	market       string
	maxRetries   int
	concurrency  int
	httpTimeout  time.Duration
	outputFormat string
	outputPath   string
	metricsAddr  string
	retryLevel   string
)

var collectCmd = &cobra.Command{
	Use:   "collect <artist>",
	Short: "Collect all track records of an artist",
	Long: `Collect all track records of an artist.

The artist is looked up by name and the best match is used. Albums and album
tracks are listed page by page, track ids are de-duplicated, and each unique
track is fetched once.

Client credentials are taken from, in order:
  - --client-id / --client-secret
  - SPOTIFETCH_CLIENT_ID / SPOTIFETCH_CLIENT_SECRET or SPOTIFY_CLIENT_ID / SPOTIFY_CLIENT_SECRET
  - the configuration file
  - stored credentials (see 'spotifetch auth login')`,
	Example: `  # Print how many tracks were collected
  spotifetch collect "Radiohead"

  # Save the raw track documents
  spotifetch collect "Radiohead" --output radiohead.json

  # Keep a SQLite catalog and expose retry metrics while running
  spotifetch collect "Radiohead" --format sqlite --output tracks.db --metrics-addr :9090`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	addCollectFlags(collectCmd.Flags())
	// the root command collects too
	addCollectFlags(rootCmd.Flags())
}

func addCollectFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&profile, "profile", "p", "", "stored credentials profile to use")
	flags.StringVar(&clientID, "client-id", "", "Spotify client id")
	flags.StringVar(&clientSecret, "client-secret", "", "Spotify client secret")
	flags.StringVar(&market, "market", "", "country market for track relinking (ISO 3166-1 alpha-2)")
	flags.IntVar(&maxRetries, "max-retries", retry.DefaultMaxRetries, "maximum attempts per API call")
	flags.IntVar(&concurrency, "concurrency", 1, "number of tracks fetched at once")
	flags.DurationVar(&httpTimeout, "timeout", 30*time.Second, "timeout of a single HTTP request")
	flags.StringVarP(&outputFormat, "format", "f", "", "output format (json, yaml, sqlite)")
	flags.StringVarP(&outputPath, "output", "o", "", "write track records to this path ('-' for stdout)")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	flags.StringVar(&retryLevel, "retry-log-level", "", "log level of retry diagnostics (defaults to --log-level)")
}

// changedFlags returns only the flags the user set, keyed like config keys
func changedFlags(flags *pflag.FlagSet) map[string]interface{} {
	values := map[string]interface{}{
		"client-id":       clientID,
		"client-secret":   clientSecret,
		"market":          market,
		"max-retries":     maxRetries,
		"concurrency":     concurrency,
		"timeout":         httpTimeout,
		"format":          outputFormat,
		"output":          outputPath,
		"metrics-addr":    metricsAddr,
		"log-level":       logLevel,
		"retry-log-level": retryLevel,
	}

	changed := make(map[string]interface{})
	for name, value := range values {
		if f := flags.Lookup(name); f != nil && f.Changed {
			changed[name] = value
		}
	}
	return changed
}

func runCollect(cmd *cobra.Command, args []string) error {
	artist := strings.TrimSpace(strings.Join(args, " "))
	if artist == "" {
		return errors.New("artist name is required")
	}

	cfg, err := config.Load(configFile, changedFlags(cmd.Flags()))
	if err != nil {
		return err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return err
	}
	log := logger.GetLogger()
	log.WithField("version", version).Debug("spotifetch starting")

	if err := resolveCredentials(cfg, log); err != nil {
		ui.PrintError("No Spotify credentials found")
		ui.PrintWarning("Run 'spotifetch auth login' or set SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET")
		return reported(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(registry)
	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr, registry, log)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(shutdownCtx)
		}()
	}

	progress := ui.NewFetchProgress()
	retryLog, err := logger.WithLevel(log, cfg.Logging.RetryLevel)
	if err != nil {
		return err
	}
	client := newSpotifyClient(cfg, log, retryLog, recorder, spotify.WithProgress(progress.Report))

	ui.PrintLogo()
	ui.PrintInfo("Artist", artist)

	if _, err := client.Authenticate(ctx, cfg.Spotify.ClientID, cfg.Spotify.ClientSecret); err != nil {
		recorder.RunFailed(err)
		log.WithError(err).Error("authentication failed")
		ui.PrintError("Authentication failed", err)
		return reported(err)
	}

	tracks, err := client.CollectArtistTracks(ctx, artist)
	if err != nil {
		recorder.RunFailed(err)
		reportCollectFailure(log, artist, err)
		return reported(err)
	}
	recorder.TracksCollected(len(tracks))

	if cfg.Output.Path != "" {
		if err := writeTracks(ctx, cfg, artist, tracks); err != nil {
			log.WithError(err).Error("export failed")
			ui.PrintError("Export failed", err)
			return reported(err)
		}
		ui.PrintInfo("Saved", cfg.Output.Path)
	}

	log.InfoWithFields("collection finished", map[string]interface{}{
		"artist":     artist,
		"tracks":     len(tracks),
		"per_minute": progress.Rate(),
	})
	ui.PrintSummary(artist, len(tracks))
	return nil
}

// newSpotifyClient wires the retry policy, its observers and the client.
// Retry diagnostics go to retryLog.
func newSpotifyClient(cfg *config.Config, log, retryLog logger.Logger, recorder *metrics.Recorder, extra ...spotify.Option) *spotify.Client {
	policy := retry.DefaultPolicy().
		WithMaxRetries(cfg.Retry.MaxRetries).
		WithJitter(cfg.Retry.JitterMin, cfg.Retry.JitterMax).
		WithObserver(retry.MultiObserver{retry.NewLogObserver(retryLog), recorder})

	opts := []spotify.Option{
		spotify.WithAuthURL(cfg.Spotify.AuthURL),
		spotify.WithBaseURL(cfg.Spotify.APIBaseURL),
		spotify.WithMarket(cfg.Spotify.Market),
		spotify.WithPolicy(policy),
		spotify.WithConcurrency(cfg.Fetch.Concurrency),
	}
	return spotify.NewClient(cfg.HTTP.Timeout, log, append(opts, extra...)...)
}

// resolveCredentials fills missing client credentials from the store
func resolveCredentials(cfg *config.Config, log logger.Logger) error {
	if cfg.HasCredentials() {
		return nil
	}

	manager, err := auth.NewManager()
	if err != nil {
		return err
	}

	var creds *auth.Credentials
	if profile != "" {
		creds, err = manager.Retrieve(profile)
	} else {
		creds, err = manager.RetrieveDefault()
	}
	if err != nil {
		return err
	}

	cfg.Spotify.ClientID = creds.ClientID
	cfg.Spotify.ClientSecret = creds.ClientSecret
	log.WithField("profile", creds.Profile).Debug("using stored credentials")
	return nil
}

// reportCollectFailure logs exhausted retries and permanent failures apart
func reportCollectFailure(log logger.Logger, artist string, err error) {
	fields := map[string]interface{}{
		"artist": artist,
		"kind":   string(errs.KindOf(err)),
		"error":  err.Error(),
	}

	var exhausted *errs.RetryExhaustedError
	switch {
	case errors.As(err, &exhausted):
		fields["target"] = exhausted.Target
		fields["attempts"] = exhausted.Attempts
		log.ErrorWithFields("gave up after exhausting retries", fields)
		ui.PrintError("Gave up after retries", err)
	case errors.Is(err, context.Canceled):
		log.WarnWithFields("collection interrupted", fields)
		ui.PrintWarning("Interrupted")
	default:
		log.ErrorWithFields("collection failed", fields)
		ui.PrintError("Collection failed", err)
	}
}

func writeTracks(ctx context.Context, cfg *config.Config, artist string, tracks []spotify.Track) error {
	format, err := export.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	w, err := export.New(format, cfg.Output.Path)
	if err != nil {
		return err
	}

	writeErr := w.Write(ctx, export.Batch{Artist: artist, Tracks: tracks})
	closeErr := w.Close()
	return errors.Join(writeErr, closeErr)
}
