package ingest_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noxie-dev/workwise-sa/internal/ingest"
	"github.com/Noxie-dev/workwise-sa/internal/model"
)

func record(title string) model.Record {
	return model.Record{
		Title:       title,
		CompanyName: "Shoprite",
		Location:    "Durban",
		Description: "Handle till operations and customer queries.",
		Salary:      "R5000 pm",
		JobType:     model.JobTypeFullTime,
		WorkMode:    model.WorkModeOnSite,
		CategoryID:  model.CategoryRetail,
		ExternalID:  "ext-" + title,
	}
}

func newClient(url string, retries int) *ingest.Client {
	return ingest.New(ingest.Config{
		URL:        url,
		APIKey:     "secret-key",
		MaxRetries: retries,
		RetryDelay: time.Millisecond,
		BatchSize:  2,
	}, nil)
}

// scripted answers each request with the next status in codes.
func scripted(t *testing.T, codes ...int) (*httptest.Server, *atomic.Int32, *sync.Map) {
	t.Helper()
	var calls atomic.Int32
	var keys sync.Map
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		keys.Store(r.Header.Get("Idempotency-Key"), true)
		code := codes[min(n, len(codes))-1]
		w.WriteHeader(code)
		if code == http.StatusOK {
			fmt.Fprint(w, `{"success":true,"message":"ok"}`)
			return
		}
		fmt.Fprint(w, `{"error":"nope"}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, &keys
}

// ── Retries ────────────────────────────────────────────────────────────────

func TestSendBatch_RetriesTransientThenSucceeds(t *testing.T) {
	srv, calls, keys := scripted(t, 503, 503, 200)

	res := newClient(srv.URL, 3).SendBatch(context.Background(), []model.Record{record("Cashier")}, "gumtree")
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Attempts)
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, 1, res.Accepted)
	assert.Equal(t, 0, res.Rejected)
	assert.Equal(t, true, res.Response["success"])

	distinct := 0
	keys.Range(func(any, any) bool { distinct++; return true })
	assert.Equal(t, 1, distinct, "idempotency key must be stable across retries")
}

func TestSendBatch_ClientErrorNotRetried(t *testing.T) {
	srv, calls, _ := scripted(t, 404)

	res := newClient(srv.URL, 3).SendBatch(context.Background(), []model.Record{record("Cashier")}, "gumtree")
	require.Error(t, res.Err)
	assert.Equal(t, 1, res.Attempts)
	assert.EqualValues(t, 1, calls.Load())

	se, ok := ingest.AsStatusError(res.Err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, 1, res.Rejected)
}

func TestSendBatch_RequestTimeoutStatusNotRetried(t *testing.T) {
	srv, calls, _ := scripted(t, 408, 408, 200)

	res := newClient(srv.URL, 3).SendBatch(context.Background(), []model.Record{record("Cashier")}, "gumtree")
	require.Error(t, res.Err)
	assert.Equal(t, 1, res.Attempts)
	assert.EqualValues(t, 1, calls.Load())

	se, ok := ingest.AsStatusError(res.Err)
	require.True(t, ok)
	assert.Equal(t, http.StatusRequestTimeout, se.Code)
	assert.Equal(t, 0, res.Accepted)
}

func TestSendBatch_ExhaustsRetries(t *testing.T) {
	srv, calls, _ := scripted(t, 500)

	res := newClient(srv.URL, 2).SendBatch(context.Background(), []model.Record{record("Cashier")}, "gumtree")
	require.Error(t, res.Err)
	assert.False(t, res.OK())
	assert.Equal(t, 3, res.Attempts)
	assert.EqualValues(t, 3, calls.Load())
}

func TestSendBatch_SuccessFalseIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			fmt.Fprint(w, `{"success":false,"message":"db busy"}`)
			return
		}
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer srv.Close()

	res := newClient(srv.URL, 3).SendBatch(context.Background(), []model.Record{record("Cashier")}, "gumtree")
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Attempts)
}

func TestSendBatch_TooManyRequestsRetried(t *testing.T) {
	srv, _, _ := scripted(t, 429, 200)
	res := newClient(srv.URL, 1).SendBatch(context.Background(), []model.Record{record("Cashier")}, "gumtree")
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Attempts)
}

// ── Request shape ──────────────────────────────────────────────────────────

func TestSendBatch_RequestShape(t *testing.T) {
	var (
		gotPath    string
		gotHeaders http.Header
		gotBody    ingest.Payload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeaders = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer srv.Close()

	noExt := record("Packer")
	noExt.ExternalID = ""
	noExt.CategoryID = 0
	res := newClient(srv.URL+"/", 0).SendBatch(context.Background(), []model.Record{record("Cashier"), noExt}, "gumtree")
	require.NoError(t, res.Err)

	assert.Equal(t, ingest.EndpointPath, gotPath)
	assert.Equal(t, "Bearer secret-key", gotHeaders.Get("Authorization"))
	assert.Equal(t, ingest.UserAgent, gotHeaders.Get("User-Agent"))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.NotEmpty(t, gotHeaders.Get("Idempotency-Key"))

	require.Len(t, gotBody.Items, 2)
	first := gotBody.Items[0]
	assert.Equal(t, "ext-Cashier", first.ExternalID)
	assert.Equal(t, "gumtree", first.Source)
	assert.Equal(t, int(model.CategoryRetail), first.CategoryID)
	assert.Equal(t, int64(1), first.CompanyID)

	second := gotBody.Items[1]
	assert.Len(t, second.ExternalID, 64, "missing external id falls back to the dedup key")
	assert.Equal(t, int(model.DefaultCategory), second.CategoryID)
}

// ── Validation ─────────────────────────────────────────────────────────────

func TestSendBatch_OnlyValidItemsSent(t *testing.T) {
	var sent atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p ingest.Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		sent.Store(int32(len(p.Items)))
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer srv.Close()

	bad := record("Cashier")
	bad.Description = "short"
	res := newClient(srv.URL, 0).SendBatch(context.Background(), []model.Record{record("Packer"), bad}, "gumtree")
	require.NoError(t, res.Err)
	assert.EqualValues(t, 1, sent.Load())
	assert.Equal(t, 1, res.Accepted)
	assert.Equal(t, 1, res.Rejected)
	require.Len(t, res.ValidationErrors, 1)
	assert.Contains(t, res.ValidationErrors[0], "description must be at least 10 characters long")
}

func TestSendBatch_AllInvalidSendsNothing(t *testing.T) {
	srv, calls, _ := scripted(t, 200)

	bad := record("Cashier")
	bad.Title = "ab"
	res := newClient(srv.URL, 3).SendBatch(context.Background(), []model.Record{bad}, "gumtree")
	assert.ErrorIs(t, res.Err, ingest.ErrNoValidItems)
	assert.False(t, res.Sent())
	assert.EqualValues(t, 0, calls.Load())
}

func TestValidate_Levels(t *testing.T) {
	r := record("Cashier")
	r.Salary = ""
	r.JobType = "Gig"

	assert.Empty(t, ingest.Validate(r, model.ValidationLenient))
	assert.Equal(t, []string{"invalid job type"}, ingest.Validate(r, model.ValidationModerate))
	assert.ElementsMatch(t, []string{"salary is required in strict mode", "invalid job type"},
		ingest.Validate(r, model.ValidationStrict))
}

// ── SendAll / concurrency ──────────────────────────────────────────────────

func TestSendAll_ChunksByBatchSize(t *testing.T) {
	srv, calls, _ := scripted(t, 200)

	records := []model.Record{record("A1x"), record("B2x"), record("C3x"), record("D4x"), record("E5x")}
	results := newClient(srv.URL, 0).SendAll(context.Background(), records, "file")
	require.Len(t, results, 3)
	assert.EqualValues(t, 3, calls.Load())

	total := 0
	for _, r := range results {
		total += r.Accepted
	}
	assert.Equal(t, 5, total)
}

func TestSendBatch_ConcurrentUse(t *testing.T) {
	srv, calls, keys := scripted(t, 200)
	c := newClient(srv.URL, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := c.SendBatch(context.Background(), []model.Record{record(fmt.Sprintf("Job %d", i))}, "gumtree")
			assert.NoError(t, res.Err)
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 8, calls.Load())
	distinct := 0
	keys.Range(func(any, any) bool { distinct++; return true })
	assert.Equal(t, 8, distinct)
}
