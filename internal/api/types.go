package api

import "github.com/samcharles93/ckptinspect/internal/inspect"

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

// InspectResponse is a document plus its totals.
type InspectResponse struct {
	*inspect.Document
	Summary inspect.Summary `json:"summary"`
}

// RefreshRequest names the document to re-read, by ID or by path.
type RefreshRequest struct {
	ID   string `json:"id,omitempty"`
	Path string `json:"path,omitempty"`
}

type DeleteDocumentResp struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func newInspectResponse(doc *inspect.Document) InspectResponse {
	return InspectResponse{Document: doc, Summary: doc.Summary()}
}
