package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apphttp "github.com/tigerroll/surfin-dualdb/internal/http"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/application/usecase"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
)

type fakeJobs struct {
	filename string
	header   string
	current  dbctx.Identifier
	err      error
}

func (f *fakeJobs) RunBatchJob(ctx context.Context, filename, database string) (*usecase.JobResult, error) {
	f.filename = filename
	f.header = database
	f.current = dbctx.Current(ctx)
	if f.err != nil {
		return nil, f.err
	}
	return &usecase.JobResult{Filename: filename, Database: dbctx.Coerce(database), ReadCount: 1, WriteCount: 1, InvocationID: "inv"}, nil
}

type fakeRecords struct {
	seen    []dbctx.Identifier
	records map[dbctx.Identifier][]model.Record
	err     error
}

func (f *fakeRecords) GetAll(ctx context.Context) ([]model.Record, error) {
	db := dbctx.Current(ctx)
	f.seen = append(f.seen, db)
	return f.records[db], f.err
}

func (f *fakeRecords) GetByID(ctx context.Context, id uint64) (*model.Record, bool, error) {
	db := dbctx.Current(ctx)
	f.seen = append(f.seen, db)
	if f.err != nil {
		return nil, false, f.err
	}
	for _, rec := range f.records[db] {
		if rec.ID == id {
			rec := rec
			return &rec, true, nil
		}
	}
	return nil, false, nil
}

type fakeExports struct {
	storage string
	props   map[string]interface{}
	current dbctx.Identifier
}

func (f *fakeExports) Export(ctx context.Context, storageName string, properties map[string]interface{}) (*usecase.ExportResult, error) {
	f.storage = storageName
	f.props = properties
	f.current = dbctx.Current(ctx)
	return &usecase.ExportResult{Database: f.current, Storage: storageName, Records: 2, Objects: []string{"records/db=" + f.current.String() + "/data.parquet"}}, nil
}

func do(t *testing.T, h http.Handler, method, target, database, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if database != "" {
		req.Header.Set(apphttp.DatabaseHeader, database)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRunSelectsDatabaseFromHeader(t *testing.T) {
	jobs := &fakeJobs{}
	h := apphttp.Handler(jobs, &fakeRecords{}, &fakeExports{}, "/metrics", nil)

	rec := do(t, h, "POST", "/api/batch/run/users.csv", "DB_B", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "users.csv", jobs.filename)
	assert.Equal(t, "DB_B", jobs.header)
	assert.Equal(t, dbctx.Secondary, jobs.current)

	var resp apphttp.RunResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Contains(t, resp.Message, "users.csv")
	require.NotNil(t, resp.Result)
	assert.Equal(t, dbctx.Secondary, resp.Result.Database)

	rec = do(t, h, "POST", "/api/batch/ejecutar/other.csv", "garbage", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "other.csv", jobs.filename)
	assert.Equal(t, dbctx.Primary, jobs.current)
}

func TestRunMapsErrorKinds(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{exception.NewValidationError("source", "file 'x' does not exist"), http.StatusBadRequest},
		{exception.NewUniquenessViolation("job", "invocation already completed"), http.StatusConflict},
		{exception.NewResourceExhaustedError("tx", "pool exhausted", nil), http.StatusServiceUnavailable},
		{exception.NewWriteError("writer", "insert failed", nil), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := apphttp.Handler(&fakeJobs{err: tc.err}, &fakeRecords{}, &fakeExports{}, "/metrics", nil)
		rec := do(t, h, "POST", "/api/batch/run/users.csv", "", "")
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())

		var resp apphttp.RunResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Contains(t, resp.Message, exception.KindOf(tc.err).String())
		assert.Nil(t, resp.Result)
	}
}

func TestRecordQueriesUseSelectedDatabase(t *testing.T) {
	records := &fakeRecords{records: map[dbctx.Identifier][]model.Record{
		dbctx.Primary:   {{ID: 1, Name: "JUAN"}},
		dbctx.Secondary: {{ID: 7, Name: "ANA"}, {ID: 8, Name: "LUIS"}},
	}}
	h := apphttp.Handler(&fakeJobs{}, records, &fakeExports{}, "/metrics", nil)

	rec := do(t, h, "GET", "/api/batch/records", "Secondary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Record
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list, 2)

	rec = do(t, h, "GET", "/api/batch/registros/1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var one model.Record
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&one))
	assert.Equal(t, "JUAN", one.Name)

	assert.Equal(t, http.StatusNotFound, do(t, h, "GET", "/api/batch/records/1", "DB_B", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "GET", "/api/batch/records/abc", "", "").Code)
	assert.Equal(t, []dbctx.Identifier{dbctx.Secondary, dbctx.Primary, dbctx.Secondary}, records.seen)
}

func TestEmptyRecordListIsJSONArray(t *testing.T) {
	h := apphttp.Handler(&fakeJobs{}, &fakeRecords{}, &fakeExports{}, "/metrics", nil)
	rec := do(t, h, "GET", "/api/batch/registros", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestExport(t *testing.T) {
	exports := &fakeExports{}
	h := apphttp.Handler(&fakeJobs{}, &fakeRecords{}, exports, "/metrics", nil)

	rec := do(t, h, "POST", "/api/batch/export", "Secondary", `{"storage":"gcs","properties":{"compression_type":"GZIP"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gcs", exports.storage)
	assert.Equal(t, "GZIP", exports.props["compression_type"])
	assert.Equal(t, dbctx.Secondary, exports.current)

	var result usecase.ExportResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, 2, result.Records)

	rec = do(t, h, "POST", "/api/batch/export", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "local", exports.storage)
	assert.Equal(t, dbctx.Primary, exports.current)

	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/api/batch/export", "", `{not json`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/api/batch/export", "", `{"storage":""}`).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("batch_read_total 1\n"))
	})
	h := apphttp.Handler(&fakeJobs{}, &fakeRecords{}, &fakeExports{}, "/metrics", metrics)
	assert.Equal(t, http.StatusOK, do(t, h, "GET", "/healthz", "", "").Code)

	rec := do(t, h, "GET", "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "batch_read_total")

	h = apphttp.Handler(&fakeJobs{}, &fakeRecords{}, &fakeExports{}, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, do(t, h, "GET", "/metrics", "", "").Code)
}
