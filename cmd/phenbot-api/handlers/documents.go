package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/phenbot/study-engine/internal/domain"
	"github.com/phenbot/study-engine/internal/ingest"
	"github.com/phenbot/study-engine/internal/observability"
	"github.com/phenbot/study-engine/internal/storage"
	"github.com/phenbot/study-engine/internal/study"
)

// DocumentHandler handles PDF uploads, listings and summaries.
type DocumentHandler struct {
	logger         *observability.Logger
	pipeline       *ingest.Pipeline
	documents      storage.DocumentStore
	study          *study.Service
	maxUploadBytes int64
}

// NewDocumentHandler creates a new document handler. maxUploadBytes bounds a whole request body.
func NewDocumentHandler(logger *observability.Logger, pipeline *ingest.Pipeline, documents storage.DocumentStore, studySvc *study.Service, maxUploadBytes int64) *DocumentHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 32 << 20
	}
	return &DocumentHandler{
		logger:         logger,
		pipeline:       pipeline,
		documents:      documents,
		study:          studySvc,
		maxUploadBytes: maxUploadBytes,
	}
}

// DocumentDTO describes an uploaded document without its chunks.
type DocumentDTO struct {
	ID           string   `json:"id"`
	OriginalName string   `json:"originalName"`
	UploadedAt   string   `json:"uploadedAt"`
	Subject      string   `json:"subject"`
	Pages        int      `json:"pages"`
	Size         int64    `json:"size"`
	Keywords     []string `json:"keywords"`
}

// UploadResultDTO is the outcome of ingesting one file.
type UploadResultDTO struct {
	Success  bool         `json:"success"`
	Filename string       `json:"filename"`
	PDFID    string       `json:"pdfId,omitempty"`
	Metadata *DocumentDTO `json:"metadata,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// BatchUploadResponseDTO lists per-file outcomes in upload order.
type BatchUploadResponseDTO struct {
	Success bool              `json:"success"`
	Results []UploadResultDTO `json:"results"`
}

// DocumentListDTO is the body of GET /documents.
type DocumentListDTO struct {
	Success bool          `json:"success"`
	PDFs    []DocumentDTO `json:"pdfs"`
}

// SummaryResponseDTO is the body of POST /documents/{id}/summary.
type SummaryResponseDTO struct {
	Success bool `json:"success"`
	*study.Summary
}

// Upload handles POST /api/v1/documents with a multipart "pdf" field.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := h.parseForm(w, r); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "Upload failed", err.Error())
		return
	}

	headers := r.MultipartForm.File["pdf"]
	if len(headers) == 0 {
		writeError(h.logger, w, http.StatusBadRequest, "No PDF file uploaded", "")
		return
	}

	up, err := readUpload(headers[0])
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "Upload failed", err.Error())
		return
	}

	doc, err := h.pipeline.Ingest(r.Context(), userID(r), up)
	if err != nil {
		writeDomainError(h.logger, w, err)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, uploadResult(ingest.Result{Name: up.Name, Document: doc}))
}

// UploadBatch handles POST /api/v1/documents/batch with repeated "pdfs" fields.
// One failing file does not fail the request.
func (h *DocumentHandler) UploadBatch(w http.ResponseWriter, r *http.Request) {
	if err := h.parseForm(w, r); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "Upload failed", err.Error())
		return
	}

	headers := r.MultipartForm.File["pdfs"]
	if len(headers) == 0 {
		writeError(h.logger, w, http.StatusBadRequest, "No PDF file uploaded", "")
		return
	}

	uploads := make([]ingest.Upload, 0, len(headers))
	for _, fh := range headers {
		up, err := readUpload(fh)
		if err != nil {
			writeError(h.logger, w, http.StatusBadRequest, "Upload failed", err.Error())
			return
		}
		uploads = append(uploads, up)
	}

	results := h.pipeline.IngestMany(r.Context(), userID(r), uploads)

	resp := BatchUploadResponseDTO{Success: true, Results: make([]UploadResultDTO, 0, len(results))}
	for _, res := range results {
		resp.Results = append(resp.Results, uploadResult(res))
	}
	writeJSON(h.logger, w, http.StatusOK, resp)
}

// List handles GET /api/v1/documents.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.documents.ListDocuments(r.Context(), userID(r))
	if err != nil {
		writeDomainError(h.logger, w, domain.StorageFailure("list documents", err))
		return
	}

	resp := DocumentListDTO{Success: true, PDFs: make([]DocumentDTO, 0, len(docs))}
	for i := range docs {
		resp.PDFs = append(resp.PDFs, toDocumentDTO(&docs[i]))
	}
	writeJSON(h.logger, w, http.StatusOK, resp)
}

// Summarize handles POST /api/v1/documents/{id}/summary.
func (h *DocumentHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	summary, err := h.study.SummarizeDocument(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, SummaryResponseDTO{Success: true, Summary: summary})
}

func (h *DocumentHandler) parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("upload exceeds %d bytes", tooLarge.Limit)
		}
		return err
	}
	return nil
}

func readUpload(fh *multipart.FileHeader) (ingest.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return ingest.Upload{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return ingest.Upload{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return ingest.Upload{Name: fh.Filename, Data: data}, nil
}

func uploadResult(res ingest.Result) UploadResultDTO {
	if res.Err != nil {
		msg := "Failed to process " + res.Name
		var de *domain.DomainError
		if errors.As(res.Err, &de) && de.Kind == domain.KindInvalidInput {
			msg = de.Message
		}
		return UploadResultDTO{Filename: res.Name, Error: msg}
	}
	dto := toDocumentDTO(res.Document)
	return UploadResultDTO{Success: true, Filename: res.Name, PDFID: res.Document.ID, Metadata: &dto}
}

func toDocumentDTO(doc *domain.Document) DocumentDTO {
	keywords := doc.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return DocumentDTO{
		ID:           doc.ID,
		OriginalName: doc.OriginalName,
		UploadedAt:   doc.UploadedAt.UTC().Format(time.RFC3339),
		Subject:      doc.Subject,
		Pages:        doc.Pages,
		Size:         doc.Size,
		Keywords:     keywords,
	}
}
