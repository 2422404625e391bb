package models

import "time"

// These structs define the JSON payloads exchanged with the workspace HTTP
// function.

// DocumentView is the JSON representation of a Document. The image bytes are
// only included as a data URI when explicitly requested.
type DocumentView struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	ImageURL           string    `json:"imageUrl,omitempty"`
	ImageName          string    `json:"imageName,omitempty"`
	ImageType          string    `json:"imageType,omitempty"`
	HasImage           bool      `json:"hasImage"`
	SelectedLanguages  []string  `json:"selectedLanguages"`
	SuggestedLanguages []string  `json:"suggestedLanguages"`
	CurrentText        string    `json:"currentText"`
	HistoryLength      int       `json:"historyLength"`
	HistoryPointer     int       `json:"historyPointer"`
	CanUndo            bool      `json:"canUndo"`
	CanRedo            bool      `json:"canRedo"`
	Status             OcrStatus `json:"status"`
	CreatedAt          time.Time `json:"createdAt"`
}

// NewDocumentView builds the JSON view of d without the image payload.
func NewDocumentView(d Document) DocumentView {
	v := DocumentView{
		ID:                 d.ID,
		Name:               d.Name,
		HasImage:           d.HasImage(),
		SelectedLanguages:  nonNil(d.SelectedLanguages),
		SuggestedLanguages: nonNil(d.SuggestedLanguages),
		CurrentText:        d.CurrentText(),
		HistoryLength:      d.History.Len(),
		HistoryPointer:     d.History.Pointer,
		CanUndo:            d.History.CanUndo(),
		CanRedo:            d.History.CanRedo(),
		Status:             d.Status,
		CreatedAt:          d.CreatedAt,
	}
	if d.Image != nil {
		v.ImageName = d.Image.Name
		v.ImageType = d.Image.MIMEType
	}
	return v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// DocumentListResponse is returned by GET /documents.
type DocumentListResponse struct {
	Documents []DocumentView `json:"documents"`
	ActiveID  string         `json:"activeId,omitempty"`
}

// LanguageView describes one recognition language offered by GET /languages.
type LanguageView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	AITag string `json:"aiTag"`
}

// LanguageListResponse is returned by GET /languages.
type LanguageListResponse struct {
	Languages []LanguageView `json:"languages"`
}

// UpdateDocumentRequest carries the simple field writes of PATCH /documents/{id}.
// Nil fields are left unchanged.
type UpdateDocumentRequest struct {
	Name              *string   `json:"name,omitempty"`
	SelectedLanguages *[]string `json:"selectedLanguages,omitempty"`
}

// SelectDocumentRequest is the input of PUT /documents/active.
type SelectDocumentRequest struct {
	ID string `json:"id"`
}

// SetImageRequest is the input of PUT /documents/{id}/image. DataURI must use
// base64 encoding and carry the MIME type.
type SetImageRequest struct {
	DataURI string `json:"dataUri"`
	Name    string `json:"name"`
}

// CommitTextRequest is the input of POST /documents/{id}/text.
type CommitTextRequest struct {
	Text string `json:"text"`
}

// ExtractTextResponse is the output of POST /documents/{id}/extract.
type ExtractTextResponse struct {
	Document    DocumentView `json:"document"`
	NoTextFound bool         `json:"noTextFound"`
	Advisory    string       `json:"advisory,omitempty"`
	Progress    []int        `json:"progress,omitempty"`
}

// SuggestLanguagesResponse is the output of POST /documents/{id}/suggest.
type SuggestLanguagesResponse struct {
	Document           DocumentView `json:"document"`
	SuggestedLanguages []string     `json:"suggestedLanguages"`
}

// ExportRequest is the input of POST /documents/{id}/export.
type ExportRequest struct {
	Formats []string `json:"formats"`
}

// ExportResponse is the output of POST /documents/{id}/export.
type ExportResponse struct {
	Status  string   `json:"status"`
	GCSUris []string `json:"gcsUris"`
}

// IngestResult is logged by the ingest event function.
type IngestResult struct {
	DocumentID string `json:"documentId"`
	Duplicate  bool   `json:"duplicate"`
	Skipped    bool   `json:"skipped,omitempty"`
}
