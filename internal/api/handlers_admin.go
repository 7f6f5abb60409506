package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docrag/internal/parser"
	"github.com/dgallion1/docrag/internal/pipeline"
)

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	job, ok := s.submit(w, "manual")
	if !ok {
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"ok":       true,
		"status":   "reindex_scheduled",
		"job_id":   job.ID,
		"poll_url": pollURL(job),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if len(data) == 0 {
		jsonError(w, "empty file", http.StatusBadRequest)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	if err := writeSource(s.cfg.SourceDir(), filename, data); err != nil {
		s.log.Error("save upload failed", "file", filename, "error", err)
		jsonError(w, "failed to save file", http.StatusInternalServerError)
		return
	}
	s.log.Info("source uploaded", "file", filename, "bytes", len(data))

	job, ok := s.submit(w, "upload:"+filename)
	if !ok {
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"ok":       true,
		"savedAs":  filename,
		"status":   "reindex_scheduled",
		"job_id":   job.ID,
		"poll_url": pollURL(job),
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || sanitizeFilename(name) != name || !parser.IsSupportedExtension(name) {
		jsonError(w, "invalid document name", http.StatusBadRequest)
		return
	}

	err := os.Remove(filepath.Join(s.cfg.SourceDir(), name))
	if errors.Is(err, os.ErrNotExist) {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("delete source failed", "file", name, "error", err)
		jsonError(w, "failed to delete document", http.StatusInternalServerError)
		return
	}
	s.log.Info("source deleted", "file", name)

	job, ok := s.submit(w, "delete:"+name)
	if !ok {
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"ok":       true,
		"deleted":  name,
		"status":   "reindex_scheduled",
		"job_id":   job.ID,
		"poll_url": pollURL(job),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) submit(w http.ResponseWriter, reason string) (*pipeline.Job, bool) {
	job, err := s.orchestrator.Submit(reason)
	if err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return nil, false
	}
	return job, true
}

func pollURL(job *pipeline.Job) string {
	return "/api/admin/jobs/" + job.ID
}

// writeSource replaces dir/name with data without exposing a partial file
// to a concurrent rebuild.
func writeSource(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".upload-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "/" {
		name = "unnamed"
	}
	return name
}
