package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/lingualens/internal/config"
	"github.com/Lllllllleong/lingualens/internal/engine"
	"github.com/Lllllllleong/lingualens/internal/gcp"
	"github.com/Lllllllleong/lingualens/internal/ocr"
	"github.com/Lllllllleong/lingualens/internal/services"
	"github.com/Lllllllleong/lingualens/internal/session"
)

// maxUploadBytes bounds request bodies and ingested objects.
const maxUploadBytes = 32 << 20

// application holds the services behind both entry points.
type application struct {
	workspace *services.Workspace
	suggester *services.Suggester
	exporter  *services.Exporter
	ingestor  *services.Ingestor
	handler   http.Handler
}

// newApplication builds every client and service selected by cfg.
func newApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	var (
		kv     session.KeyValueStore
		ledger services.IngestLedger
	)
	switch cfg.StoreBackend {
	case config.BackendFirestore:
		firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		kv = gcp.NewFirestoreKV(firestoreClient, cfg.FirestoreCollection, cfg.WorkspaceID)
		ledger = gcp.NewIngestLedger(firestoreClient, cfg.FirestoreCollection, cfg.WorkspaceID)
	default:
		kv = session.NewMemoryKV()
		ledger = services.NewMemoryLedger()
	}

	store := session.Open(ctx, kv,
		session.WithDefaultLanguages(cfg.Languages()...),
		session.WithMaxHistory(cfg.MaxHistory),
	)
	manager := engine.NewManager(engine.NewTesseractFactory(cfg.TessdataPrefix))
	workspace := services.NewWorkspace(store, ocr.NewRecognizer(manager), manager)

	a := &application{workspace: workspace}

	if cfg.ProjectID != "" {
		vertexClient, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexRegion, cfg.SuggesterModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		a.suggester = services.NewSuggester(store, vertexClient.SuggesterModel)
	}

	var sink services.BlobSink
	if cfg.ExportBucket != "" || cfg.IngestBucket != "" {
		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Storage client: %w", err)
		}
		if cfg.ExportBucket != "" {
			sink = gcp.NewBucket(storageClient, cfg.ExportBucket)
		}
		if cfg.IngestBucket != "" {
			a.ingestor = services.NewIngestor(store, gcp.NewObjectReader(storageClient, maxUploadBytes), ledger, cfg.IngestBucket)
		}
	}
	a.exporter = services.NewExporter(store, sink)
	a.handler = a.routes()

	slog.Info("Workspace initialized.",
		"storeBackend", cfg.StoreBackend,
		"workspaceId", cfg.WorkspaceID,
		"suggester", a.suggester != nil,
		"exportBucket", cfg.ExportBucket,
		"ingestBucket", cfg.IngestBucket,
	)
	return a, nil
}

func (a *application) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /languages", a.listLanguages)
	mux.HandleFunc("GET /documents", a.listDocuments)
	mux.HandleFunc("POST /documents", a.createDocument)
	mux.HandleFunc("GET /documents/active", a.getActive)
	mux.HandleFunc("PUT /documents/active", a.selectDocument)
	mux.HandleFunc("GET /documents/{id}", a.getDocument)
	mux.HandleFunc("PATCH /documents/{id}", a.updateDocument)
	mux.HandleFunc("DELETE /documents/{id}", a.deleteDocument)
	mux.HandleFunc("PUT /documents/{id}/image", a.setImage)
	mux.HandleFunc("POST /documents/{id}/text", a.commitText)
	mux.HandleFunc("POST /documents/{id}/undo", a.undo)
	mux.HandleFunc("POST /documents/{id}/redo", a.redo)
	mux.HandleFunc("POST /documents/{id}/extract", a.extractText)
	mux.HandleFunc("POST /documents/{id}/suggest", a.suggestLanguages)
	mux.HandleFunc("GET /documents/{id}/export", a.downloadExport)
	mux.HandleFunc("POST /documents/{id}/export", a.uploadExport)
	mux.HandleFunc("POST /engine/terminate", a.terminateEngine)
	return http.MaxBytesHandler(mux, maxUploadBytes)
}
