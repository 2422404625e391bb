package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Lllllllleong/lingualens/internal/imaging"
	"github.com/Lllllllleong/lingualens/internal/language"
	"github.com/Lllllllleong/lingualens/internal/models"
	"github.com/Lllllllleong/lingualens/internal/ocr"
	"github.com/Lllllllleong/lingualens/internal/services"
	"github.com/Lllllllleong/lingualens/internal/session"
)

func (a *application) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, activeID := a.workspace.Documents()
	res := models.DocumentListResponse{Documents: make([]models.DocumentView, 0, len(docs)), ActiveID: activeID}
	for _, d := range docs {
		res.Documents = append(res.Documents, models.NewDocumentView(d))
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *application) listLanguages(w http.ResponseWriter, r *http.Request) {
	res := models.LanguageListResponse{Languages: make([]models.LanguageView, 0, len(language.Supported))}
	for _, l := range language.Supported {
		tag, _ := language.ToAITag(l)
		res.Languages = append(res.Languages, models.LanguageView{ID: l, Name: language.DisplayName(l), AITag: tag})
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *application) createDocument(w http.ResponseWriter, r *http.Request) {
	d := a.workspace.Store().CreateDocument(r.Context())
	writeJSON(w, http.StatusCreated, models.NewDocumentView(d))
}

func (a *application) getActive(w http.ResponseWriter, r *http.Request) {
	writeDocument(w, r, a.workspace.Active(r.Context()))
}

func (a *application) selectDocument(w http.ResponseWriter, r *http.Request) {
	var req models.SelectDocumentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.workspace.Store().SelectDocument(r.Context(), req.ID); err != nil {
		writeError(w, err)
		return
	}
	a.respondDocument(w, r, req.ID)
}

func (a *application) getDocument(w http.ResponseWriter, r *http.Request) {
	a.respondDocument(w, r, r.PathValue("id"))
}

func (a *application) updateDocument(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateDocumentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := a.workspace.UpdateDocument(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeDocument(w, r, d)
}

func (a *application) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := a.workspace.Store().DeleteDocument(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *application) setImage(w http.ResponseWriter, r *http.Request) {
	var req models.SetImageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := a.workspace.SetImage(r.Context(), r.PathValue("id"), req.DataURI, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeDocument(w, r, d)
}

func (a *application) commitText(w http.ResponseWriter, r *http.Request) {
	var req models.CommitTextRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a.respondMutation(w, r, func(ctx context.Context, id string) (models.Document, error) {
		return a.workspace.Store().CommitText(ctx, id, req.Text)
	})
}

func (a *application) undo(w http.ResponseWriter, r *http.Request) {
	a.respondMutation(w, r, a.workspace.Store().Undo)
}

func (a *application) redo(w http.ResponseWriter, r *http.Request) {
	a.respondMutation(w, r, a.workspace.Store().Redo)
}

func (a *application) extractText(w http.ResponseWriter, r *http.Request) {
	var progress []int
	res, err := a.workspace.ExtractText(r.Context(), r.PathValue("id"), func(p int) {
		progress = append(progress, p)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.ExtractTextResponse{
		Document:    models.NewDocumentView(res.Document),
		NoTextFound: res.NoTextFound,
		Advisory:    res.Advisory,
		Progress:    progress,
	})
}

func (a *application) suggestLanguages(w http.ResponseWriter, r *http.Request) {
	if a.suggester == nil {
		http.Error(w, "Service Unavailable: language suggestion is not configured", http.StatusServiceUnavailable)
		return
	}
	d, langs, err := a.suggester.Suggest(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if langs == nil {
		langs = []string{}
	}
	writeJSON(w, http.StatusOK, models.SuggestLanguagesResponse{
		Document:           models.NewDocumentView(d),
		SuggestedLanguages: langs,
	})
}

func (a *application) downloadExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "txt"
	}
	data, f, err := a.exporter.Render(r.PathValue("id"), format)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Filename()))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		slog.Error("Failed to write export", "error", err)
	}
}

func (a *application) uploadExport(w http.ResponseWriter, r *http.Request) {
	var req models.ExportRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	uris, err := a.exporter.Export(r.Context(), r.PathValue("id"), req.Formats...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.ExportResponse{Status: "success", GCSUris: uris})
}

func (a *application) terminateEngine(w http.ResponseWriter, r *http.Request) {
	if err := a.workspace.TerminateEngine(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *application) respondDocument(w http.ResponseWriter, r *http.Request, id string) {
	d, err := a.workspace.Store().Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeDocument(w, r, d)
}

func (a *application) respondMutation(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (models.Document, error)) {
	d, err := fn(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeDocument(w, r, d)
}

// writeDocument includes the image as a data URI when ?include=image is set.
func writeDocument(w http.ResponseWriter, r *http.Request, d models.Document) {
	v := models.NewDocumentView(d)
	if r.URL.Query().Get("include") == "image" && d.HasImage() {
		v.ImageURL = imaging.DataURI(d.Image.Data, d.Image.MIMEType)
	}
	writeJSON(w, http.StatusOK, v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		slog.Warn("Could not decode request body", "error", err, "path", r.URL.Path)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ocr.ErrInvalidRequest),
		errors.Is(err, imaging.ErrInvalidDataURI),
		errors.Is(err, imaging.ErrUnsupportedImage):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrDocumentBusy):
		return http.StatusConflict
	case errors.Is(err, ocr.ErrEngineFailure),
		errors.Is(err, services.ErrSuggestionFailed):
		return http.StatusBadGateway
	case errors.Is(err, services.ErrExportDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "error", err, "status", status)
	}
	http.Error(w, http.StatusText(status)+": "+err.Error(), status)
}
