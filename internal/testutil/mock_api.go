// Package testutil provides testing utilities for the animal ETL engine.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/animal-etl/pkg/model"
)

// Failure makes a route answer with StatusCode for the next Times requests
// (Times < 0 means forever). Delay is applied before answering.
type Failure struct {
	StatusCode int
	Times      int
	Delay      time.Duration
}

// MockAPI is a configurable in-process Animals API for tests.
type MockAPI struct {
	server *httptest.Server

	mu         sync.Mutex
	animals    []model.DetailRecord
	pageSize   int
	totalPages int // overrides the computed page count when > 0
	failures   map[string]*Failure
	requests   map[string]int
	posted     [][]model.TransformedRecord
	rawPages   map[int]string
}

// NewMockAPI starts a mock server with no animals and a page size of 10.
func NewMockAPI() *MockAPI {
	m := &MockAPI{
		pageSize: 10,
		failures: make(map[string]*Failure),
		requests: make(map[string]int),
		rawPages: make(map[int]string),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// SetAnimals replaces the served dataset.
func (m *MockAPI) SetAnimals(animals ...model.DetailRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.animals = animals
}

// SetPageSize sets how many items each listing page carries.
func (m *MockAPI) SetPageSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageSize = n
}

// SetTotalPages forces the advertised total_pages value.
func (m *MockAPI) SetTotalPages(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalPages = n
}

// SetRawPage serves body verbatim (status 200) for the given listing page.
func (m *MockAPI) SetRawPage(page int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rawPages[page] = body
}

// FailPage injects a failure for a listing page.
func (m *MockAPI) FailPage(page int, f Failure) {
	m.setFailure(pageKey(page), f)
}

// FailDetail injects a failure for one animal's detail endpoint.
func (m *MockAPI) FailDetail(id int64, f Failure) {
	m.setFailure(detailKey(id), f)
}

// FailHome injects a failure for the home endpoint.
func (m *MockAPI) FailHome(f Failure) {
	m.setFailure("home", f)
}

// Requests returns how often a route key was hit ("page:N", "detail:ID", "home").
func (m *MockAPI) Requests(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[key]
}

// PostedBatches returns a copy of every batch accepted by the home endpoint.
func (m *MockAPI) PostedBatches() [][]model.TransformedRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]model.TransformedRecord, len(m.posted))
	copy(out, m.posted)
	return out
}

// PostedIDs returns the IDs of every posted record, batch by batch.
func (m *MockAPI) PostedIDs() [][]int64 {
	batches := m.PostedBatches()
	out := make([][]int64, 0, len(batches))
	for _, batch := range batches {
		ids := make([]int64, 0, len(batch))
		for _, rec := range batch {
			ids = append(ids, rec.ID)
		}
		out = append(out, ids)
	}
	return out
}

func (m *MockAPI) setFailure(key string, f Failure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[key] = &f
}

// takeFailure records the request and returns the failure to apply, if any.
func (m *MockAPI) takeFailure(key string) *Failure {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[key]++

	f, ok := m.failures[key]
	if !ok || f.Times == 0 {
		return nil
	}
	if f.Times > 0 {
		f.Times--
	}
	applied := *f
	return &applied
}

func (m *MockAPI) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	switch {
	case r.URL.Path == "/animals/v1/animals" && r.Method == http.MethodGet:
		m.handleListing(w, r)
	case strings.HasPrefix(r.URL.Path, "/animals/v1/animals/") && r.Method == http.MethodGet:
		m.handleDetail(w, r)
	case r.URL.Path == "/animals/v1/home" && r.Method == http.MethodPost:
		m.handleHome(w, r)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (m *MockAPI) handleListing(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, "invalid page")
		return
	}
	if fail := m.takeFailure(pageKey(page)); fail != nil {
		applyFailure(w, fail)
		return
	}

	m.mu.Lock()
	raw, hasRaw := m.rawPages[page]
	size := m.pageSize
	total := m.totalPages
	start := (page - 1) * size
	items := []model.RawListItem{}
	for i := start; i < start+size && i < len(m.animals); i++ {
		a := m.animals[i]
		items = append(items, model.RawListItem{ID: a.ID, Name: a.Name, BornAt: a.BornAt})
	}
	if total <= 0 {
		total = (len(m.animals) + size - 1) / size
	}
	m.mu.Unlock()

	if hasRaw {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(raw))
		return
	}

	writeJSON(w, http.StatusOK, model.ListingPage{Items: items, Page: page, TotalPages: total})
}

func (m *MockAPI) handleDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/animals/v1/animals/"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if fail := m.takeFailure(detailKey(id)); fail != nil {
		applyFailure(w, fail)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.animals {
		if a.ID == id {
			writeJSON(w, http.StatusOK, a)
			return
		}
	}
	writeError(w, http.StatusNotFound, "animal not found")
}

func (m *MockAPI) handleHome(w http.ResponseWriter, r *http.Request) {
	if fail := m.takeFailure("home"); fail != nil {
		applyFailure(w, fail)
		return
	}

	var batch []model.TransformedRecord
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if len(batch) > 100 {
		writeError(w, http.StatusRequestEntityTooLarge, "too many animals")
		return
	}

	m.mu.Lock()
	m.posted = append(m.posted, batch)
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, model.HomeResponse{
		Message: fmt.Sprintf("Helped %d find home", len(batch)),
	})
}

func applyFailure(w http.ResponseWriter, f *Failure) {
	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	status := f.StatusCode
	if status == 0 {
		status = http.StatusGatewayTimeout
	}
	writeError(w, status, http.StatusText(status))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func pageKey(page int) string {
	return fmt.Sprintf("page:%d", page)
}

func detailKey(id int64) string {
	return fmt.Sprintf("detail:%d", id)
}

// Animals builds n sequential detail records with IDs 1..n.
func Animals(n int) []model.DetailRecord {
	out := make([]model.DetailRecord, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, model.DetailRecord{
			ID:      int64(i),
			Name:    fmt.Sprintf("Animal %d", i),
			BornAt:  model.BornAtMillis(int64(i) * 86_400_000),
			Friends: model.DelimitedFriends("Ant, Bee,,Cat "),
		})
	}
	return out
}
