package model

import "time"

// ReportArtifact is the rendered document for one case. Only Path is
// persisted, on the patient row.
type ReportArtifact struct {
	AttentionCode string    `json:"attentionCode"`
	Path          string    `json:"path"`
	Size          int64     `json:"size"`
	GeneratedAt   time.Time `json:"generatedAt"`
}

// SignResponse is returned by PUT /reports/sign/:id.
type SignResponse struct {
	PDFPath string `json:"pdfPath"`
}

// ReportSignedEvent is published after a successful signing.
type ReportSignedEvent struct {
	PatientID     int64     `json:"patientId"`
	AttentionCode string    `json:"attentionCode"`
	PDFPath       string    `json:"pdfPath"`
	SignedAt      time.Time `json:"signedAt"`
}
