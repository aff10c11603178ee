package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/leapstack-labs/creditscope/internal/dataset"
	"github.com/leapstack-labs/creditscope/internal/state"
	"github.com/leapstack-labs/creditscope/internal/verify"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

type handlers struct {
	outputDir string
	store     state.Store
	logger    *slog.Logger
}

// ProgramDetail is a master entry with its data from every unified file
// that carries the program, keyed by file name.
type ProgramDetail struct {
	dataset.MasterEntry
	Groups map[string]*dataset.GroupEntry `json:"groups"`
}

// RunDetail is a run with the outcome of each of its sources.
type RunDetail struct {
	*state.Run
	Sources []state.SourceRun `json:"sources"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// load reads the dataset for one request. A dataset that was never built
// answers 404.
func (h *handlers) load(w http.ResponseWriter) (*dataset.Dataset, bool) {
	ds, err := dataset.Load(h.outputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "no dataset in "+h.outputDir)
			return nil, false
		}
		h.logger.Error("failed to load dataset", "dir", h.outputDir, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return ds, true
}

func (h *handlers) manifest(w http.ResponseWriter, _ *http.Request) {
	ds, ok := h.load(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ds.Manifest)
}

func (h *handlers) taxonomy(w http.ResponseWriter, _ *http.Request) {
	ds, ok := h.load(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ds.Taxonomy)
}

func (h *handlers) verify(w http.ResponseWriter, _ *http.Request) {
	ds, ok := h.load(w)
	if !ok {
		return
	}
	cov, err := verify.Coverage(h.outputDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, verify.Evaluate(ds, cov))
}

// listPrograms answers the programs master in ID order. The sector query
// parameter matches exactly ignoring case; agency matches a substring of the
// agency label or the department.
func (h *handlers) listPrograms(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.load(w)
	if !ok {
		return
	}
	sector := r.URL.Query().Get("sector")
	agency := strings.ToLower(r.URL.Query().Get("agency"))

	out := []dataset.MasterEntry{}
	for _, p := range ds.Programs() {
		if sector != "" && !strings.EqualFold(p.Sector, sector) {
			continue
		}
		if agency != "" &&
			!strings.Contains(strings.ToLower(p.Agency), agency) &&
			!strings.Contains(strings.ToLower(p.Department), agency) {
			continue
		}
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getProgram(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.load(w)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	entry, found := ds.Master[id]
	if !found {
		writeError(w, http.StatusNotFound, "program not found: "+id)
		return
	}

	detail := ProgramDetail{MasterEntry: entry, Groups: map[string]*dataset.GroupEntry{}}
	for _, g := range dataset.Groups {
		gf := ds.Groups[g.File]
		if gf == nil {
			continue
		}
		if ge, ok := gf.Programs[id]; ok {
			detail.Groups[g.File] = ge
		}
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *handlers) listRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "no state database")
		return
	}
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit: "+v)
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := h.store.ListRuns(limit)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*state.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *handlers) getRun(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "no state database")
		return
	}
	id := chi.URLParam(r, "id")
	run, err := h.store.GetRun(id)
	if errors.Is(err, state.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sources, err := h.store.GetSources(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sources == nil {
		sources = []state.SourceRun{}
	}
	writeJSON(w, http.StatusOK, RunDetail{Run: run, Sources: sources})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
