package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dronetrace/dronetrace/internal/catalog"
	"github.com/dronetrace/dronetrace/internal/logging"
)

const maxJobsLimit = 500

func NewRouter(cfg ServerConfig) *chi.Mux {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/sources", listSourcesHandler(cfg))
		r.Post("/sources/folders", addFolderHandler(cfg))
		r.Delete("/sources/{id}", deleteSourceHandler(cfg))
		r.Get("/sources/{id}/flights", listFlightsHandler(cfg))
		r.With(LoopbackGuard()).Get("/sources/{id}/exports/{kind}", exportHandler(cfg))
		r.Post("/convert", convertHandler(cfg))
		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))
		r.Get("/jobs/{id}/files", listJobFilesHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  cfg.Version,
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sources, _ := cfg.CatalogService.GetSources(ctx)
		flightsCount, _ := cfg.CatalogService.CountFlights(ctx)
		jobs, _ := cfg.Repository.ListJobs(ctx, 10)

		resp := StatusResponse{
			State:        "idle",
			SourcesCount: len(sources),
			FlightsCount: flightsCount,
		}
		if cfg.Runner != nil && cfg.Runner.IsPaused() {
			resp.State = "paused"
		}

		for _, j := range jobs {
			switch j.Status {
			case catalog.JobStatusRunning:
				resp.State = "converting"
				if resp.ActiveJob == nil {
					active := JobToResponse(j)
					resp.ActiveJob = &active
				}
				resp.JobsRunning++
			case catalog.JobStatusPending:
				resp.JobsPending++
			case catalog.JobStatusFailed:
				if resp.LastError == "" {
					resp.LastError = j.Error
				}
			}
		}

		if resp.LastError != "" && resp.State == "idle" {
			resp.State = "error"
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func listSourcesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := cfg.CatalogService.GetSources(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list sources", "INTERNAL_ERROR")
			return
		}

		resp := SourcesResponse{Sources: make([]SourceResponse, len(sources))}
		for i, s := range sources {
			resp.Sources[i] = SourceToResponse(s)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func addFolderHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddFolderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.Path == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}

		source, err := cfg.CatalogService.AddFolder(r.Context(), req.Path, req.DisplayName)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		WriteJSON(w, http.StatusCreated, AddFolderResponse{SourceID: source.ID})
	}
}

func deleteSourceHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := cfg.CatalogService.RemoveSource(r.Context(), id); err != nil {
			if errors.Is(err, catalog.ErrSourceNotFound) {
				WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
				return
			}
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// lookupSource writes a 404 and returns nil when the {id} source is unknown.
func lookupSource(cfg ServerConfig, w http.ResponseWriter, r *http.Request) *catalog.Source {
	source, err := cfg.CatalogService.GetSource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		return nil
	}
	if source == nil {
		WriteError(w, http.StatusNotFound, "source not found", "NOT_FOUND")
		return nil
	}
	return source
}

func listFlightsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source := lookupSource(cfg, w, r)
		if source == nil {
			return
		}

		flights, err := cfg.CatalogService.GetFlights(r.Context(), source.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		resp := FlightsResponse{Flights: make([]FlightResponse, len(flights))}
		for i, f := range flights {
			resp.Flights[i] = FlightToResponse(f)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func exportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Exports == nil || cfg.Download == nil {
			WriteError(w, http.StatusNotFound, "exports are not served", "NOT_FOUND")
			return
		}

		source := lookupSource(cfg, w, r)
		if source == nil {
			return
		}
		if !source.Present {
			WriteError(w, http.StatusNotFound, "source folder '"+source.DisplayName+"' is missing", "SOURCE_MISSING")
			return
		}

		path, err := cfg.Exports.Path(source, chi.URLParam(r, "kind"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		if err := cfg.Download.ServeFile(w, r, path); err != nil {
			cfg.Logger.Error("export download failed", "error", err, "source_id", source.ID)
			WriteError(w, http.StatusInternalServerError, "failed to read export", "INTERNAL_ERROR")
		}
	}
}

func convertHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConvertRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		var jobs []*catalog.Job
		if req.SourceID == "" {
			all, err := cfg.CatalogService.ConvertAll(r.Context())
			if err != nil {
				WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
				return
			}
			jobs = all
		} else {
			job, err := cfg.CatalogService.ConvertSource(r.Context(), req.SourceID)
			if errors.Is(err, catalog.ErrSourceNotFound) {
				WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
				return
			}
			if err != nil {
				WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
				return
			}
			jobs = []*catalog.Job{job}
		}

		resp := ConvertResponse{JobIDs: make([]string, len(jobs))}
		for i, j := range jobs {
			resp.JobIDs[i] = j.ID
		}
		WriteJSON(w, http.StatusAccepted, resp)
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = min(n, maxJobsLimit)
		}

		jobs, err := cfg.Repository.ListJobs(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(jobs))}
		for i, j := range jobs {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Repository.GetJob(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func listJobFilesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := cfg.Repository.GetJob(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}

		files, err := cfg.CatalogService.GetJobFiles(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		resp := LogFilesResponse{Files: make([]LogFileResponse, len(files))}
		for i, f := range files {
			resp.Files[i] = LogFileToResponse(f)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
