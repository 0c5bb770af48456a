package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/MonilMehta/fyp/internal/config"
	"github.com/MonilMehta/fyp/internal/dashboard"
	"github.com/MonilMehta/fyp/internal/db"
	"github.com/MonilMehta/fyp/internal/fingerprint"
	"github.com/MonilMehta/fyp/internal/ingest"
	"github.com/MonilMehta/fyp/internal/server"
	"github.com/MonilMehta/fyp/internal/stats"
	"github.com/MonilMehta/fyp/internal/tracking"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the collection server",
	Long:  `Starts the collection server: disguise endpoints, correlation store and operator dashboard.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if servePort != 0 {
			cfg.Port = servePort
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		log := newLogger(cfg.LogLevel)

		database, err := db.Open(filepath.Join(cfg.DataDir, "doctrace.db"))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()

		var resolver fingerprint.Resolver
		if cfg.GeoIP.CityDB != "" || cfg.GeoIP.ASNDB != "" || cfg.GeoIP.AnonDB != "" {
			mm, err := fingerprint.OpenMaxMind(cfg.GeoIP.CityDB, cfg.GeoIP.ASNDB, cfg.GeoIP.AnonDB)
			if err != nil {
				return fmt.Errorf("opening geoip databases: %w", err)
			}
			defer mm.Close()
			resolver = mm
		} else {
			log.Warn().Msg("no geoip databases configured, geo fields will be unknown")
		}

		store := tracking.NewStore(database, time.Duration(cfg.SessionWindowMinutes)*time.Minute)
		engine := stats.NewEngine(store)

		pipeline := ingest.NewPipeline(store, resolver, log)

		feed := dashboard.NewFeed(log)
		pipeline.SetSink(feed)

		srv := server.New(server.Config{
			Port:     cfg.Port,
			AllowAll: cfg.AllowAllOrigins,
		}, log)

		r := srv.Router()
		ingest.NewHandler(pipeline, cfg.BeaconSecret).RegisterRoutes(r)
		stats.RegisterRoutes(r, engine)
		dashboard.New(store, engine, feed).RegisterRoutes(r)

		// Graceful shutdown.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			<-ctx.Done()
			log.Info().Msg("shutting down")
			srv.Shutdown(context.Background())
		}()

		log.Info().
			Str("version", Version).
			Str("database", database.Path()).
			Dur("session_window", store.SessionWindow()).
			Msg("doctrace starting")

		return srv.Start()
	},
}

// newLogger builds the diagnostic logger. JSON to stdout by default;
// human-readable console output in verbose mode.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if verbose {
		lvl = zerolog.DebugLevel
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(lvl).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override the configured listen port")
	rootCmd.AddCommand(serveCmd)
}
