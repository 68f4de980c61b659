package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/imvu-insight/datasync/internal/classify"
	"github.com/imvu-insight/datasync/internal/digest"
	"github.com/imvu-insight/datasync/internal/logging"
	"github.com/imvu-insight/datasync/internal/store"
)

type recordItem struct {
	ID          int64             `json:"id"`
	UploadedAt  time.Time         `json:"uploaded_at"`
	Type        classify.DataType `json:"type"`
	Filename    string            `json:"filename"`
	Hash        string            `json:"hash"`
	RecordCount int               `json:"record_count"`
	FileSize    int64             `json:"file_size"`
}

type recordListResponse struct {
	Total    int64        `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	Items    []recordItem `json:"items"`
}

type byHashResponse struct {
	Exists bool        `json:"exists"`
	Record *recordItem `json:"record,omitempty"`
}

type importResponse struct {
	ID            int64  `json:"id"`
	Filename      string `json:"filename"`
	ImportedCount *int   `json:"imported_count,omitempty"`
}

func toRecordItem(rec *store.DataSyncRecord) recordItem {
	return recordItem{
		ID:          rec.ID,
		UploadedAt:  rec.UploadedAt,
		Type:        rec.Type,
		Filename:    rec.Filename,
		Hash:        rec.Hash,
		RecordCount: rec.RecordCount,
		FileSize:    rec.FileSize,
	}
}

// handleListRecords returns one page of upload records, newest first,
// optionally filtered by data type. Content is never included.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	var typ classify.DataType
	if raw := q.Get("type"); raw != "" {
		parsed, ok := classify.ParseDataType(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid type filter")
			return
		}
		typ = parsed
	}

	records, total, err := s.records.ListRecords(r.Context(), page, pageSize, typ)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError, "failed to list records")
		return
	}

	items := make([]recordItem, len(records))
	for i := range records {
		items[i] = toRecordItem(&records[i])
	}
	writeJSON(w, http.StatusOK, recordListResponse{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Items:    items,
	})
}

// handleRecordByHash reports whether an upload with the given content
// hash exists, along with the most recent match. Always a 200.
func (s *Server) handleRecordByHash(w http.ResponseWriter, r *http.Request) {
	hash := r.URL.Query().Get("hash")
	if hash == "" {
		writeError(w, http.StatusBadRequest, "hash parameter is required")
		return
	}

	rec, err := s.records.LatestRecordByHash(r.Context(), hash)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError, "hash lookup failed")
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusOK, byHashResponse{Exists: false})
		return
	}

	item := toRecordItem(rec)
	writeJSON(w, http.StatusOK, byHashResponse{Exists: true, Record: &item})
}

// handleDeleteRecord removes an upload record by ID.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id parameter")
		return
	}

	deleted, err := s.records.DeleteRecord(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError, "delete failed")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// handleImport accepts a multipart upload for the given data type,
// records its hash and size, persists the original file, and creates an
// upload record. The dry_run form field validates without persisting;
// overwrite first removes earlier uploads with the same hash.
func (s *Server) handleImport(typ classify.DataType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.imports.acquire(r.Context()); err != nil {
			if errors.Is(err, errTooManyImports) {
				writeError(w, http.StatusTooManyRequests, err.Error())
				return
			}
			writeError(w, http.StatusServiceUnavailable, "import cancelled")
			return
		}
		defer s.imports.release()

		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize+(1<<20))
		if err := r.ParseMultipartForm(s.cfg.Upload.MaxFileSize + (1 << 20)); err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "file field is required")
			return
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			s.respondError(w, r, err, http.StatusInternalServerError, "failed to read upload")
			return
		}
		if int64(len(content)) > s.cfg.Upload.MaxFileSize {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}

		overwrite, _ := strconv.ParseBool(r.FormValue("overwrite"))
		dryRun, _ := strconv.ParseBool(r.FormValue("dry_run"))

		hash := digest.Sum(content)
		recordCount := countRecords(content)
		safeName := s.uploadName(typ, header.Filename)

		log := logging.WithFields(r.Context(),
			"type", typ,
			"filename", header.Filename,
			"hash", hash,
			"records", recordCount,
		)

		if dryRun {
			log.Info("dry run import validated")
			writeJSON(w, http.StatusOK, importResponse{
				ID:            0,
				Filename:      safeName,
				ImportedCount: &recordCount,
			})
			return
		}

		if overwrite {
			removed, err := s.records.DeleteRecordsByHash(r.Context(), hash)
			if err != nil {
				s.respondError(w, r, err, http.StatusInternalServerError, "import failed")
				return
			}
			if removed > 0 {
				log.Info("overwrote previous uploads", "removed", removed)
			}
		}

		if err := s.persistUpload(safeName, content); err != nil {
			s.respondError(w, r, err, http.StatusInternalServerError, "import failed")
			return
		}

		rec := &store.DataSyncRecord{
			Type:        typ,
			Filename:    safeName,
			Hash:        hash,
			RecordCount: recordCount,
			FileSize:    int64(len(content)),
			Content:     content,
		}
		if claims := claimsFrom(r.Context()); claims != nil {
			rec.UserID = &claims.UserID
		}
		if err := s.records.CreateRecord(r.Context(), rec); err != nil {
			s.respondError(w, r, err, http.StatusInternalServerError, "import failed")
			return
		}

		log.Info("import completed", "record_id", rec.ID)
		writeJSON(w, http.StatusOK, importResponse{
			ID:            rec.ID,
			Filename:      rec.Filename,
			ImportedCount: &recordCount,
		})
	}
}

// countRecords estimates how many records a text upload holds by
// counting newlines; non-empty content counts as at least one.
func countRecords(content []byte) int {
	n := 0
	for _, b := range content {
		if b == '\n' {
			n++
		}
	}
	if n == 0 && len(content) > 0 {
		n = 1
	}
	return n
}

// uploadName builds the on-disk name for a persisted upload, keeping
// only the original file's extension.
func (s *Server) uploadName(typ classify.DataType, original string) string {
	now := s.now().UTC()
	suffix := filepath.Ext(filepath.Base(original))
	return fmt.Sprintf("%s.upload.%s%06d%s",
		typ, now.Format("20060102150405"), now.Nanosecond()/1000, suffix)
}

// persistUpload writes the original file under the uploads directory
// for later inspection.
func (s *Server) persistUpload(name string, content []byte) error {
	dir := s.cfg.Upload.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create uploads dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
		return fmt.Errorf("persist upload: %w", err)
	}
	return nil
}
