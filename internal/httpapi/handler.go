// Package httpapi exposes comparisons over HTTP.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/dxfdiff/internal/artifacts"
	"github.com/rpattn/dxfdiff/internal/comparison"
	"github.com/rpattn/dxfdiff/internal/domain"
	"github.com/rpattn/dxfdiff/internal/pairing"
	"github.com/rpattn/dxfdiff/internal/registry"
	"github.com/rpattn/dxfdiff/internal/report"
)

// Handler serves the comparison endpoints.
type Handler struct {
	service      *comparison.Service
	store        artifacts.Store
	signer       *artifacts.Signer
	defaults     comparison.Options
	maxUpload    int64
	workbook     *registry.Workbook
	workbookPath string
	mux          *http.ServeMux
}

type Option func(*Handler)

// WithStore serves stored artifacts under /api/artifacts/.
func WithStore(store artifacts.Store) Option {
	return func(h *Handler) {
		h.store = store
	}
}

// WithSigner requires a download token, as issued in compare responses, for artifact downloads.
func WithSigner(signer *artifacts.Signer) Option {
	return func(h *Handler) {
		h.signer = signer
	}
}

// WithMaxUploadMB bounds the size of a multipart request.
func WithMaxUploadMB(mb int) Option {
	return func(h *Handler) {
		if mb > 0 {
			h.maxUpload = int64(mb) << 20
		}
	}
}

// WithWorkbook includes the relationship workbook in batch archives and saves it to path after
// every batch when path is not empty.
func WithWorkbook(workbook *registry.Workbook, path string) Option {
	return func(h *Handler) {
		h.workbook = workbook
		h.workbookPath = path
	}
}

// NewHandler routes the API. Request options are applied on top of defaults.
func NewHandler(service *comparison.Service, defaults comparison.Options, opts ...Option) *Handler {
	h := &Handler{
		service:   service,
		defaults:  defaults,
		maxUpload: 64 << 20,
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.mux.HandleFunc("GET /healthz", h.health)
	h.mux.HandleFunc("POST /api/compare", h.compare)
	h.mux.HandleFunc("POST /api/extract", h.extract)
	h.mux.HandleFunc("POST /api/batch", h.batch)
	h.mux.HandleFunc("GET /api/artifacts/{name}", h.artifact)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// compare accepts the multipart files "new" and "source". With format=dxf the merged drawing is
// returned instead of the JSON result.
func (h *Handler) compare(w http.ResponseWriter, r *http.Request) {
	uploads, cleanup, ok := h.receive(w, r)
	if !ok {
		return
	}
	defer cleanup()

	opts, err := parseOptions(r, h.defaults)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	newUpload, okNew := uploads.single("new")
	sourceUpload, okSource := uploads.single("source")
	if !okNew || !okSource {
		http.Error(w, "files new and source are required", http.StatusBadRequest)
		return
	}

	newInfo, err := h.service.Inspect(r.Context(), newUpload.Filename, newUpload.Path, opts.Extract)
	if err != nil {
		http.Error(w, fmt.Sprintf("new drawing: %v", err), http.StatusUnprocessableEntity)
		return
	}
	sourceInfo, err := h.service.Inspect(r.Context(), sourceUpload.Filename, sourceUpload.Path, opts.Extract)
	if err != nil {
		http.Error(w, fmt.Sprintf("source drawing: %v", err), http.StatusUnprocessableEntity)
		return
	}

	relation := domain.RelationRevisionUp
	if newInfo.SourceID != "" && newInfo.SourceID == sourceInfo.ID {
		relation = domain.RelationDerivedFrom
	}
	pair := pairing.Pair{
		NewID:    newInfo.ID,
		SourceID: sourceInfo.ID,
		Relation: relation,
		Status:   pairing.StatusComplete,
		New:      &newInfo,
		Source:   &sourceInfo,
	}

	result := h.service.Compare(r.Context(), pair, opts)
	h.saveWorkbook()
	if !result.Success {
		writeJSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	if r.FormValue("format") == "dxf" {
		w.Header().Set("Content-Type", "image/vnd.dxf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.OutputFilename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.MergedDXF)
		return
	}
	response := compareResponse{ComparisonResult: result}
	if h.store != nil && result.OutputLocation != "" {
		response.DownloadURL = "/api/artifacts/" + url.PathEscape(result.OutputFilename)
		if h.signer != nil {
			response.DownloadURL += "?token=" + url.QueryEscape(h.signer.Sign(result.OutputFilename))
		}
	}
	writeJSON(w, http.StatusOK, response)
}

type compareResponse struct {
	domain.ComparisonResult
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// extract reads the title block of the multipart file "file".
func (h *Handler) extract(w http.ResponseWriter, r *http.Request) {
	uploads, cleanup, ok := h.receive(w, r)
	if !ok {
		return
	}
	defer cleanup()

	upload, ok := uploads.single("file")
	if !ok {
		http.Error(w, "file required", http.StatusBadRequest)
		return
	}
	opts, err := parseOptions(r, h.defaults)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	info, err := h.service.Inspect(r.Context(), upload.Filename, upload.Path, opts.Extract)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// batch pairs every multipart file in "files" and compares the complete pairs. The response is a
// ZIP archive, or the JSON batch result with format=json.
func (h *Handler) batch(w http.ResponseWriter, r *http.Request) {
	uploads, cleanup, ok := h.receive(w, r)
	if !ok {
		return
	}
	defer cleanup()

	files := uploads["files"]
	if len(files) == 0 {
		http.Error(w, "at least one file is required", http.StatusBadRequest)
		return
	}
	opts, err := parseOptions(r, h.defaults)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.service.Batch(r.Context(), files, opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	h.saveWorkbook()

	if r.FormValue("format") == "json" {
		writeJSON(w, http.StatusOK, result)
		return
	}

	archive := report.ArchiveOptions{Colors: opts.Diff.Colors, CreatedAt: time.Now().UTC()}
	if h.workbook != nil {
		archive.Registry = h.workbook
	}
	var buf bytes.Buffer
	if err := report.WriteArchive(&buf, result.Results, archive); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="dxf_diff_results.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) artifact(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		http.NotFound(w, r)
		return
	}
	name := r.PathValue("name")
	if h.signer != nil {
		if err := h.signer.Verify(name, r.URL.Query().Get("token")); err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
	}
	data, err := h.store.Get(r.Context(), name)
	if errors.Is(err, artifacts.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(name)))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) saveWorkbook() {
	if h.workbook == nil || h.workbookPath == "" {
		return
	}
	if err := h.workbook.SaveFile(h.workbookPath); err != nil {
		log.Printf("[HTTP] saving registry workbook: %v", err)
	}
}

// uploadSet maps multipart field names to the uploads saved on disk.
type uploadSet map[string][]comparison.Upload

func (u uploadSet) single(field string) (comparison.Upload, bool) {
	files := u[field]
	if len(files) != 1 {
		return comparison.Upload{}, false
	}
	return files[0], true
}

// receive parses the multipart form and saves every file part into a temporary directory that
// the returned cleanup removes.
func (h *Handler) receive(w http.ResponseWriter, r *http.Request) (uploadSet, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return nil, nil, false
	}

	dir, err := os.MkdirTemp("", "dxfdiff-upload-*")
	if err != nil {
		http.Error(w, "failed to stage uploads", http.StatusInternalServerError)
		return nil, nil, false
	}
	cleanup := func() {
		_ = r.MultipartForm.RemoveAll()
		_ = os.RemoveAll(dir)
	}

	uploads := uploadSet{}
	for field, headers := range r.MultipartForm.File {
		for i, header := range headers {
			path := filepath.Join(dir, fmt.Sprintf("%s-%d-%s", field, i, safeName(header.Filename)))
			if err := saveUpload(header, path); err != nil {
				cleanup()
				http.Error(w, fmt.Sprintf("failed to read file: %v", err), http.StatusBadRequest)
				return nil, nil, false
			}
			uploads[field] = append(uploads[field], comparison.Upload{Filename: header.Filename, Path: path})
		}
	}
	return uploads, cleanup, true
}

func saveUpload(header *multipart.FileHeader, path string) error {
	src, err := header.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

func safeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "upload.dxf"
	}
	return base
}

// parseOptions overrides the defaults with the optional form fields tolerance, deleted_color,
// added_color, unchanged_color, offset_x, offset_y and prefixes.
func parseOptions(r *http.Request, defaults comparison.Options) (comparison.Options, error) {
	opts := defaults
	if raw := strings.TrimSpace(r.FormValue("tolerance")); raw != "" {
		tolerance, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return opts, fmt.Errorf("invalid tolerance %q", raw)
		}
		opts = opts.WithTolerance(tolerance)
	}
	for field, dst := range map[string]*int{
		"deleted_color":   &opts.Diff.Colors.Deleted,
		"added_color":     &opts.Diff.Colors.Added,
		"unchanged_color": &opts.Diff.Colors.Unchanged,
	} {
		raw := strings.TrimSpace(r.FormValue(field))
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			return opts, fmt.Errorf("invalid %s %q", field, raw)
		}
		*dst = value
	}

	rawX, rawY := strings.TrimSpace(r.FormValue("offset_x")), strings.TrimSpace(r.FormValue("offset_y"))
	if rawX != "" || rawY != "" {
		var offset domain.Vector
		var err error
		if rawX != "" {
			if offset.X, err = strconv.ParseFloat(rawX, 64); err != nil {
				return opts, fmt.Errorf("invalid offset_x %q", rawX)
			}
		}
		if rawY != "" {
			if offset.Y, err = strconv.ParseFloat(rawY, 64); err != nil {
				return opts, fmt.Errorf("invalid offset_y %q", rawY)
			}
		}
		opts.Diff.Offset = &offset
	}

	if raw := strings.TrimSpace(r.FormValue("prefixes")); raw != "" {
		var prefixes []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				prefixes = append(prefixes, part)
			}
		}
		opts.UnchangedPrefixes = prefixes
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
