package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Lllllllleong/lingualens/internal/history"
	"github.com/Lllllllleong/lingualens/internal/imaging"
	"github.com/Lllllllleong/lingualens/internal/models"
)

// ErrPersistenceCorrupt marks a stored snapshot that cannot be trusted. It
// never leaves the package: the store recovers by starting empty.
var ErrPersistenceCorrupt = errors.New("persisted sessions are corrupt")

// documentRecord is the persisted form of a Document. Field names match the
// records written by earlier versions of the app, which predate textHistory
// and historyPointer; readers must tolerate both being absent.
type documentRecord struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name"`
	ImageURL              *string  `json:"imageUrl,omitempty"`
	ImageName             *string  `json:"imageName,omitempty"`
	ImageType             *string  `json:"imageType,omitempty"`
	SelectedOcrLanguages  []string `json:"selectedOcrLanguages"`
	SuggestedOcrLanguages []string `json:"suggestedOcrLanguages,omitempty"`
	ExtractedText         string   `json:"extractedText"`
	IsLoadingOcr          bool     `json:"isLoadingOcr"`
	OcrError              *string  `json:"ocrError,omitempty"`
	CreatedAt             int64    `json:"createdAt"`
	TextHistory           []string `json:"textHistory,omitempty"`
	HistoryPointer        *int     `json:"historyPointer,omitempty"`
}

func encodeDocuments(docs []models.Document) (string, error) {
	records := make([]documentRecord, 0, len(docs))
	for _, d := range docs {
		records = append(records, toRecord(d))
	}
	b, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("marshal sessions: %w", err)
	}
	return string(b), nil
}

func toRecord(d models.Document) documentRecord {
	pointer := d.History.Pointer
	r := documentRecord{
		ID:                    d.ID,
		Name:                  d.Name,
		SelectedOcrLanguages:  append([]string{}, d.SelectedLanguages...),
		SuggestedOcrLanguages: d.SuggestedLanguages,
		ExtractedText:         d.CurrentText(),
		IsLoadingOcr:          d.Status.State == models.OcrRunning,
		CreatedAt:             d.CreatedAt.UnixMilli(),
		TextHistory:           d.History.Entries,
		HistoryPointer:        &pointer,
	}
	if d.Status.State == models.OcrFailed {
		reason := d.Status.Reason
		r.OcrError = &reason
	}
	if d.HasImage() {
		uri := imaging.DataURI(d.Image.Data, d.Image.MIMEType)
		name, mt := d.Image.Name, d.Image.MIMEType
		r.ImageURL, r.ImageName, r.ImageType = &uri, &name, &mt
	}
	return r
}

// decodeDocuments parses and normalizes the persisted collection. Any record
// that fails validation makes the whole snapshot corrupt.
func decodeDocuments(raw string) ([]models.Document, error) {
	var records []documentRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceCorrupt, err)
	}
	docs := make([]models.Document, 0, len(records))
	seen := make(map[string]bool, len(records))
	for i, r := range records {
		d, err := fromRecord(r)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrPersistenceCorrupt, i, err)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrPersistenceCorrupt, d.ID)
		}
		seen[d.ID] = true
		docs = append(docs, d)
	}
	return docs, nil
}

func fromRecord(r documentRecord) (models.Document, error) {
	if r.ID == "" {
		return models.Document{}, errors.New("missing id")
	}

	h := history.Stack{Entries: r.TextHistory}
	if r.TextHistory == nil {
		h = history.Of(r.ExtractedText)
	} else if r.HistoryPointer == nil {
		h.Pointer = len(h.Entries) - 1
	} else {
		h.Pointer = *r.HistoryPointer
	}
	if !h.Valid() {
		return models.Document{}, fmt.Errorf("history pointer %d out of range for %d entries", h.Pointer, len(h.Entries))
	}

	d := models.Document{
		ID:                 r.ID,
		Name:               r.Name,
		SelectedLanguages:  uniqueLanguages(r.SelectedOcrLanguages),
		SuggestedLanguages: uniqueLanguages(r.SuggestedOcrLanguages),
		History:            h,
		Status:             models.Idle(),
		CreatedAt:          time.UnixMilli(r.CreatedAt),
	}
	// A recognition that was running when the snapshot was written belongs to
	// a process that no longer exists.
	if r.OcrError != nil && *r.OcrError != "" && !r.IsLoadingOcr {
		d.Status = models.Failed(*r.OcrError)
	}

	if r.ImageURL != nil && *r.ImageURL != "" {
		data, mt, err := imaging.ParseDataURI(*r.ImageURL)
		if err != nil {
			return models.Document{}, err
		}
		img := &models.Image{Data: data, MIMEType: mt}
		if r.ImageType != nil && *r.ImageType != "" {
			img.MIMEType = *r.ImageType
		}
		if r.ImageName != nil {
			img.Name = *r.ImageName
		}
		d.Image = img
	}
	return d, nil
}
