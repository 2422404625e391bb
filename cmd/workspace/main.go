package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/lingualens/internal/config"
	"github.com/Lllllllleong/lingualens/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	app     *application
	once    sync.Once
	initErr error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleWorkspace", handleWorkspace)
	functions.CloudEvent("IngestImage", ingestImage)
}

// main serves both functions locally. Deployed functions only use init.
func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := funcframework.Start(port); err != nil {
		slog.Error("Functions framework stopped", "error", err)
		os.Exit(1)
	}
}

func initApp() (*application, error) {
	once.Do(func() {
		var cfg *config.Config
		cfg, initErr = config.Load()
		if initErr != nil {
			initErr = fmt.Errorf("failed to load configuration: %w", initErr)
			return
		}
		app, initErr = newApplication(context.Background(), cfg)
	})
	return app, initErr
}

// handleWorkspace is the HTTP entry point for every document operation.
func handleWorkspace(w http.ResponseWriter, r *http.Request) {
	a, err := initApp()
	if err != nil {
		slog.Error("Critical: Workspace initialization failed", "error", err)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	a.handler.ServeHTTP(w, r)
}

// ingestImage is the CloudEvent entry point for uploads to the ingest bucket.
func ingestImage(ctx context.Context, e cloudevents.Event) error {
	a, err := initApp()
	if err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		return err
	}

	if a.ingestor == nil {
		slog.Error("Received ingest event but INGEST_BUCKET is not set", "eventId", e.ID())
		return fmt.Errorf("INGEST_BUCKET must be set to ingest uploads")
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	res, err := a.ingestor.Process(ctx, gcsEvent)
	if err != nil {
		return err
	}
	slog.Info("Ingest event handled.", "eventId", e.ID(), "documentId", res.DocumentID, "duplicate", res.Duplicate, "skipped", res.Skipped)
	return nil
}
