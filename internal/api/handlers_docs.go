package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/dgallion1/docrag/internal/corpus"
)

type documentInfo struct {
	Name    string `json:"name"`
	Bytes   int64  `json:"bytes"`
	Chunks  int    `json:"chunks"`
	Indexed bool   `json:"indexed"`
}

// handleListDocuments lists the source files with their chunk counts in the
// served snapshot. Sources removed since the last rebuild are not listed.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	names, err := corpus.ListSources(s.cfg.SourceDir())
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}

	chunks := make(map[string]int)
	if snap := s.index.Snapshot(); snap != nil {
		for _, st := range snap.Sources() {
			chunks[st.Source] = st.Chunks
		}
	}

	docs := make([]documentInfo, 0, len(names))
	for _, name := range names {
		info := documentInfo{Name: name}
		if fi, err := os.Stat(filepath.Join(s.cfg.SourceDir(), name)); err == nil {
			info.Bytes = fi.Size()
		}
		info.Chunks, info.Indexed = chunks[name]
		docs = append(docs, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}
