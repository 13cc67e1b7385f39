// Command hbdbot runs the Misskey birthday bot.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	gcs "cloud.google.com/go/storage"
	"github.com/jonboulle/clockwork"
	"google.golang.org/api/option"

	"hbdbot/bot"
	"hbdbot/config"
	"hbdbot/misskey"
	"hbdbot/notify"
	"hbdbot/ratelimit"
	"hbdbot/server"
	"hbdbot/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Bot failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Initialize structured logger
	logger := config.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	var storageClient *gcs.Client
	if cfg.StorageBucket != "" {
		storageClient, err = newStorageClient(ctx, cfg.GoogleCredentialsJSON)
		if err != nil {
			return fmt.Errorf("initialize storage client: %w", err)
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}()
	} else {
		logger.Info("No STORAGE_BUCKET set, using local storage", "path", cfg.LocalStoragePath)
	}
	store := storage.New(storageClient, cfg.StorageBucket, cfg.LocalStoragePath, cfg.StateObject, logger)

	doc, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state from %s: %w", store.Location(), err)
	}
	cfg.ApplyDocument(doc)

	if cfg.Token == "" {
		fmt.Fprintln(os.Stderr, config.SetupInstructions)
		return errors.New("no access token configured")
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	client := misskey.New(httpClient, misskey.Options{
		Host:             cfg.Host,
		Token:            cfg.Token,
		AntennaID:        cfg.AntennaID,
		TimelineEndpoint: cfg.TimelineEndpoint,
	}, logger)

	self, err := client.Me(ctx)
	if err != nil {
		return fmt.Errorf("read bot account: %w", err)
	}
	logger.Info("Signed in", "user", self.Handle(), "host", cfg.Host)

	var provider notify.Provider
	if cfg.Silent {
		logger.Info("Silent mode enabled, admin alerts are logged only")
		provider = notify.NewMockProvider(logger)
	} else {
		provider = notify.NewDMProvider(client, logger)
	}

	clock := clockwork.NewRealClock()
	b := bot.New(cfg, bot.Deps{
		Client: client,
		Store:  store,
		Alert:  notify.New(provider, logger, cfg.Admin),
		Gate:   ratelimit.New(clock, cfg.Limits(), logger),
		Clock:  clock,
		Logger: logger,
		Self:   self,
	})
	b.Restore(doc)

	if cfg.StatusAddr != "" {
		srv := server.New(b, logger)
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.StatusAddr); err != nil {
				logger.Error("Status server failed", "error", err)
			}
		}()
	}

	return b.Run(ctx)
}

// newStorageClient uses explicit credentials when given, and Application
// Default Credentials otherwise.
func newStorageClient(ctx context.Context, credsJSON string) (*gcs.Client, error) {
	if credsJSON != "" {
		return gcs.NewClient(ctx, option.WithCredentialsJSON([]byte(credsJSON)))
	}
	if !isCloudRun(ctx) {
		slog.Warn("No GOOGLE_CREDENTIALS_JSON and not on Cloud Run, relying on local application default credentials")
	}
	return gcs.NewClient(ctx)
}

// isCloudRun checks if we're running in a GCP environment by querying the metadata server.
func isCloudRun(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://metadata.google.internal/computeMetadata/v1/project/project-id", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", "Google")

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}
