package models

import (
	"time"

	"github.com/Lllllllleong/lingualens/internal/history"
)

// OcrState is the tag of an OcrStatus.
type OcrState string

const (
	OcrIdle    OcrState = "idle"
	OcrRunning OcrState = "running"
	OcrFailed  OcrState = "failed"
)

// OcrStatus tracks the recognition state of a document. Reason is only set
// when State is OcrFailed.
type OcrStatus struct {
	State  OcrState `json:"state"`
	Reason string   `json:"reason,omitempty"`
}

// Idle is the status of a document with no recognition in progress.
func Idle() OcrStatus { return OcrStatus{State: OcrIdle} }

// Running is the status of a document whose image is being recognized.
func Running() OcrStatus { return OcrStatus{State: OcrRunning} }

// Failed is the status of a document whose last recognition failed.
func Failed(reason string) OcrStatus { return OcrStatus{State: OcrFailed, Reason: reason} }

// Image is the uploaded source image of a document.
type Image struct {
	Data     []byte
	Name     string
	MIMEType string
}

// Document is one OCR workspace: a source image, the languages to recognize
// it in, and the edit history of the extracted text.
type Document struct {
	ID                 string
	Name               string
	Image              *Image
	SelectedLanguages  []string
	SuggestedLanguages []string
	History            history.Stack
	Status             OcrStatus
	CreatedAt          time.Time
}

// CurrentText is the text currently shown for the document.
func (d Document) CurrentText() string { return d.History.Current() }

// HasImage reports whether an image has been uploaded.
func (d Document) HasImage() bool { return d.Image != nil && len(d.Image.Data) > 0 }

// Clone returns a copy that shares no mutable state with d.
func (d Document) Clone() Document {
	c := d
	if d.Image != nil {
		img := *d.Image
		img.Data = append([]byte(nil), d.Image.Data...)
		c.Image = &img
	}
	c.SelectedLanguages = append([]string(nil), d.SelectedLanguages...)
	c.SuggestedLanguages = append([]string(nil), d.SuggestedLanguages...)
	c.History = d.History.Clone()
	return c
}

// IngestRecord is the Firestore record written for every image picked up
// from the ingest bucket. It lets repeated uploads of the same file be
// recognized and skipped.
type IngestRecord struct {
	FileHash         string    `firestore:"fileHash,omitempty"`
	OriginalFilename string    `firestore:"originalFilename,omitempty"`
	Bucket           string    `firestore:"bucket,omitempty"`
	DocumentID       string    `firestore:"documentId,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt,omitempty"`
}
