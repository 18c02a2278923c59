package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const archivePrefix = "archive/"

// ArchiveHandler lists cold-storage objects and reads the audit log.
type ArchiveHandler struct {
	blobs  domain.BlobReader // nil when archiving is disabled
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler. blobs may be nil.
func NewArchiveHandler(blobs domain.BlobReader, audit domain.AuditStore, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{blobs: blobs, audit: audit, logger: logHandler(logger, "archives")}
}

type blobResponse struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// List returns archived objects under ?prefix= (default "archive/").
// GET /api/archives
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		writeError(w, http.StatusNotFound, "archiving is not enabled")
		return
	}
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = archivePrefix
	}
	if !strings.HasPrefix(prefix, archivePrefix) {
		writeError(w, http.StatusBadRequest, "prefix must start with "+archivePrefix)
		return
	}

	infos, err := h.blobs.List(r.Context(), prefix)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list archives", err)
		return
	}
	out := make([]blobResponse, 0, len(infos))
	for _, b := range infos {
		out = append(out, blobResponse(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"objects": out})
}

// Audit returns audit log rows, newest first.
// GET /api/audit?limit=50&offset=0&since=RFC3339
func (h *ArchiveHandler) Audit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list audit log", err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
