package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/deduply/internal/config"
	"github.com/ignite/deduply/internal/pkg/httputil"
	"github.com/ignite/deduply/internal/pkg/logger"
	"github.com/ignite/deduply/internal/service/dedup"
	"github.com/ignite/deduply/internal/service/jobs"
	"github.com/ignite/deduply/internal/worker"
)

// Handlers bundles the services behind the HTTP surface.
type Handlers struct {
	dedup      *dedup.Service
	importJobs *jobs.Service
	verifyJobs *jobs.Service
	importer   *worker.Importer
	verifier   *worker.Verifier
	importCfg  config.ImportConfig
}

// NewHandlers creates the handler set.
func NewHandlers(
	dedupSvc *dedup.Service,
	importJobs, verifyJobs *jobs.Service,
	importer *worker.Importer,
	verifier *worker.Verifier,
	importCfg config.ImportConfig,
) *Handlers {
	return &Handlers{
		dedup:      dedupSvc,
		importJobs: importJobs,
		verifyJobs: verifyJobs,
		importer:   importer,
		verifier:   verifier,
		importCfg:  importCfg,
	}
}

// ---------------------------------------------------------------------------
// Duplicates
// ---------------------------------------------------------------------------

// GetDuplicateGroups returns duplicate groups, largest first.
//
//	GET /api/duplicates?limit=100
func (h *Handlers) GetDuplicateGroups(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	groups, err := h.dedup.Groups(r.Context(), limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"groups": groups,
		"count":  len(groups),
	})
}

// GetDuplicateStats returns aggregate duplicate numbers.
//
//	GET /api/duplicates/stats
func (h *Handlers) GetDuplicateStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dedup.GetStats(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, stats)
}

// MergeGroup merges one duplicate group by its normalized email.
//
//	POST /api/duplicates/merge-group/{email}
func (h *Handlers) MergeGroup(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if email == "" {
		httputil.BadRequest(w, "email is required")
		return
	}

	outcome, err := h.dedup.MergeGroup(r.Context(), email)
	switch {
	case errors.Is(err, dedup.ErrGroupGone):
		httputil.NotFound(w, "no such duplicate group")
	case errors.Is(err, dedup.ErrMergeLocked):
		httputil.Error(w, http.StatusConflict, "group is being merged by another request")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, outcome)
	}
}

// AutoMerge merges every duplicate group.
//
//	POST /api/duplicates/auto-merge
func (h *Handlers) AutoMerge(w http.ResponseWriter, r *http.Request) {
	result, err := h.dedup.MergeAll(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, result)
}

// Unmerge restores a previously merged contact to active.
//
//	POST /api/duplicates/unmerge/{id}
func (h *Handlers) Unmerge(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httputil.BadRequest(w, "id must be an integer")
		return
	}

	err = h.dedup.Unmerge(r.Context(), id)
	switch {
	case errors.Is(err, dedup.ErrNotFound):
		httputil.NotFound(w, "contact not found")
	case errors.Is(err, dedup.ErrNotDuplicate):
		httputil.Error(w, http.StatusConflict, "contact is not merged")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, map[string]any{"restored": id})
	}
}

// ---------------------------------------------------------------------------
// Import
// ---------------------------------------------------------------------------

// readUpload pulls the "file" part out of a multipart request, bounded by
// the configured size limit.
func (h *Handlers) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.importCfg.MaxUploadBytes))
	file, _, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "multipart field 'file' is required")
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httputil.BadRequest(w, "could not read upload: "+err.Error())
		return nil, false
	}
	return data, true
}

// StartImport accepts a CSV upload and starts an import job.
//
//	POST /api/import
func (h *Handlers) StartImport(w http.ResponseWriter, r *http.Request) {
	data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	job, err := h.importJobs.Create(r.Context(), 0)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	// The runner owns the job from here; the client polls for progress.
	go func() {
		if err := h.importer.Run(context.Background(), job.ID, bytes.NewReader(data)); err != nil {
			logger.Error("import run failed", "job_id", job.ID, "error", err.Error())
		}
	}()

	httputil.Created(w, job)
}

// PreviewImport maps the header and normalizes the first rows without
// writing anything.
//
//	POST /api/import/preview
func (h *Handlers) PreviewImport(w http.ResponseWriter, r *http.Request) {
	data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	preview, err := worker.PreviewCSV(bytes.NewReader(data), h.importCfg.PreviewRows, h.importCfg.CleanValues)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.OK(w, preview)
}

// GetImportJob returns live progress for one import job.
//
//	GET /api/import/job/{id}
func (h *Handlers) GetImportJob(w http.ResponseWriter, r *http.Request) {
	h.getJob(w, r, h.importJobs)
}

// ListImportJobs returns pending and running import jobs.
//
//	GET /api/import/jobs/active
func (h *Handlers) ListImportJobs(w http.ResponseWriter, r *http.Request) {
	h.listJobs(w, r, h.importJobs)
}

// CancelImportJob requests cooperative cancellation of an import job.
//
//	POST /api/import/job/{id}/cancel
func (h *Handlers) CancelImportJob(w http.ResponseWriter, r *http.Request) {
	h.cancelJob(w, r, h.importJobs)
}

// ---------------------------------------------------------------------------
// Verification
// ---------------------------------------------------------------------------

type startVerificationRequest struct {
	ContactIDs []int64 `json:"contact_ids"`
}

// StartVerification starts a verification job over the given contact ids,
// or over the whole unverified backlog when none are given.
//
//	POST /api/verify
func (h *Handlers) StartVerification(w http.ResponseWriter, r *http.Request) {
	var req startVerificationRequest
	if r.ContentLength > 0 && !httputil.Decode(w, r, &req) {
		return
	}

	job, err := h.verifyJobs.Create(r.Context(), len(req.ContactIDs))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	go func() {
		if err := h.verifier.Run(context.Background(), job.ID, req.ContactIDs); err != nil {
			logger.Error("verification run failed", "job_id", job.ID, "error", err.Error())
		}
	}()

	httputil.Created(w, job)
}

// GetVerificationJob returns live progress for one verification job.
//
//	GET /api/verify/job/{id}
func (h *Handlers) GetVerificationJob(w http.ResponseWriter, r *http.Request) {
	h.getJob(w, r, h.verifyJobs)
}

// ListVerificationJobs returns pending and running verification jobs.
//
//	GET /api/verify/jobs/active
func (h *Handlers) ListVerificationJobs(w http.ResponseWriter, r *http.Request) {
	h.listJobs(w, r, h.verifyJobs)
}

// CancelVerificationJob requests cooperative cancellation.
//
//	POST /api/verify/job/{id}/cancel
func (h *Handlers) CancelVerificationJob(w http.ResponseWriter, r *http.Request) {
	h.cancelJob(w, r, h.verifyJobs)
}

// ---------------------------------------------------------------------------
// Shared job plumbing
// ---------------------------------------------------------------------------

func (h *Handlers) getJob(w http.ResponseWriter, r *http.Request, svc *jobs.Service) {
	id := chi.URLParam(r, "id")

	snap, err := svc.Snapshot(r.Context(), id)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		httputil.NotFound(w, "job not found")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, snap)
	}
}

func (h *Handlers) listJobs(w http.ResponseWriter, r *http.Request, svc *jobs.Service) {
	active, err := svc.ListActive(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"jobs":  active,
		"count": len(active),
	})
}

func (h *Handlers) cancelJob(w http.ResponseWriter, r *http.Request, svc *jobs.Service) {
	id := chi.URLParam(r, "id")

	err := svc.RequestCancel(r.Context(), id)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		httputil.NotFound(w, "job not found")
	case errors.Is(err, jobs.ErrTerminal):
		httputil.Error(w, http.StatusConflict, "job already finished")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, map[string]any{"cancel_requested": id})
	}
}
