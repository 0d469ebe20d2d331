// Package http exposes the import, the record queries and the export over HTTP.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/application/usecase"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

// DatabaseHeader selects the target database of a request.
const DatabaseHeader = "X-Database"

// JobRunner runs one import.
type JobRunner interface {
	RunBatchJob(ctx context.Context, filename, database string) (*usecase.JobResult, error)
}

// RecordQuerier reads records from the database selected in ctx.
type RecordQuerier interface {
	GetAll(ctx context.Context) ([]model.Record, error)
	GetByID(ctx context.Context, id uint64) (*model.Record, bool, error)
}

// Exporter exports the records of the database selected in ctx.
type Exporter interface {
	Export(ctx context.Context, storageName string, properties map[string]interface{}) (*usecase.ExportResult, error)
}

// Handler returns the router of the batch API. metricsHandler is mounted on metricsPath
// when it is not nil.
func Handler(jobs JobRunner, records RecordQuerier, exports Exporter, metricsPath string, metricsHandler http.Handler) http.Handler {
	server := &server{
		jobs:    jobs,
		records: records,
		exports: exports,
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", server.getHealth).Methods("GET").Name("GetHealth")
	if metricsHandler != nil {
		router.Handle(metricsPath, metricsHandler).Methods("GET").Name("GetMetrics")
	}

	api := router.PathPrefix("/api/batch").Subrouter()
	api.Use(databaseContext)
	api.HandleFunc("/run/{filename}", server.postRun).Methods("POST").Name("PostRun")
	api.HandleFunc("/ejecutar/{filename}", server.postRun).Methods("POST").Name("PostEjecutar")
	api.HandleFunc("/records", server.getRecords).Methods("GET").Name("GetRecords")
	api.HandleFunc("/records/{id}", server.getRecord).Methods("GET").Name("GetRecord")
	api.HandleFunc("/registros", server.getRecords).Methods("GET").Name("GetRegistros")
	api.HandleFunc("/registros/{id}", server.getRecord).Methods("GET").Name("GetRegistro")
	api.HandleFunc("/export", server.postExport).Methods("POST").Name("PostExport")

	return router
}

type server struct {
	jobs    JobRunner
	records RecordQuerier
	exports Exporter
}

// databaseContext gives every request its own execution context holder, selected from
// the X-Database header. Missing or unknown values select Primary. The holder is cleared
// once the request completes, whatever the outcome.
func databaseContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		holder := dbctx.NewHolder()
		holder.SetCurrent(dbctx.Coerce(r.Header.Get(DatabaseHeader)))
		defer holder.Clear()
		next.ServeHTTP(w, r.WithContext(dbctx.WithHolder(r.Context(), holder)))
	})
}

// GET /healthz
func (s *server) getHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// RunResponse is the body returned by the run endpoint.
type RunResponse struct {
	Message string             `json:"message"`
	Result  *usecase.JobResult `json:"result,omitempty"`
}

// POST /api/batch/run/{filename}
func (s *server) postRun(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	result, err := s.jobs.RunBatchJob(r.Context(), filename, r.Header.Get(DatabaseHeader))
	resp := RunResponse{Message: usecase.Describe(result, err), Result: result}
	if err != nil {
		writeJSON(w, statusOf(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/batch/records
func (s *server) getRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.records.GetAll(r.Context())
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	if records == nil {
		records = []model.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GET /api/batch/records/{id}
func (s *server) getRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "id must be a positive integer", http.StatusBadRequest)
		return
	}

	rec, found, err := s.records.GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	if !found {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ExportRequest is the body of the export endpoint.
type ExportRequest struct {
	Storage    string                 `json:"storage"`
	Properties map[string]interface{} `json:"properties"`
}

// POST /api/batch/export
func (s *server) postExport(w http.ResponseWriter, r *http.Request) {
	req := ExportRequest{Storage: "local"}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "decoding request as json: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.Storage == "" {
		http.Error(w, "storage must not be empty", http.StatusBadRequest)
		return
	}

	result, err := s.exports.Export(r.Context(), req.Storage, req.Properties)
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// statusOf maps an error kind to an HTTP status.
func statusOf(err error) int {
	switch exception.KindOf(err) {
	case exception.KindValidation:
		return http.StatusBadRequest
	case exception.KindUniqueness:
		return http.StatusConflict
	case exception.KindResourceExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("Failed to encode response: %v", err)
	}
}
