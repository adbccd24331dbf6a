package testutil

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// RecordedRequest is one request seen by HiBobServer.
type RecordedRequest struct {
	Method string
	Path   string // relative to the API root, e.g. "people/42/work"
	Body   string
	Header http.Header
}

// HiBobServer is an httptest server speaking the subset of the HiBob API the
// extractor uses. Payloads are raw JSON so tests control key order.
type HiBobServer struct {
	*httptest.Server

	mu           sync.Mutex
	serviceUser  string
	token        string
	employees    string
	subResources map[string]string
	failures     map[string][]int
	requests     []RecordedRequest
}

// NewHiBobServer starts a server that accepts the given credentials. It is
// closed when the test ends.
func NewHiBobServer(t *testing.T, serviceUser, token string) *HiBobServer {
	t.Helper()
	s := &HiBobServer{
		serviceUser:  serviceUser,
		token:        token,
		employees:    "[]",
		subResources: make(map[string]string),
		failures:     make(map[string][]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// BaseURL returns the API root, mirroring https://api.hibob.com/v1/.
func (s *HiBobServer) BaseURL() string {
	return s.URL + "/v1/"
}

// SetEmployees sets the raw JSON array returned by the search call.
func (s *HiBobServer) SetEmployees(rawArray string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees = rawArray
}

// SetSubResource sets the raw JSON array returned as "values" for
// people/{id}/{kind}. Unset pairs answer with an object lacking "values".
func (s *HiBobServer) SetSubResource(id, kind, rawArray string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subResources[id+"/"+kind] = rawArray
}

// FailWith queues statuses returned, one per request, before path succeeds.
func (s *HiBobServer) FailWith(path string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = append(s.failures[path], statuses...)
}

// Requests returns every request received so far.
func (s *HiBobServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// CountRequests returns how many requests hit path.
func (s *HiBobServer) CountRequests(path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Path == path {
			n++
		}
	}
	return n
}

func (s *HiBobServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	path := strings.TrimPrefix(r.URL.Path, "/v1/")

	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Method: r.Method,
		Path:   path,
		Body:   string(body),
		Header: r.Header.Clone(),
	})
	var status int
	if queue := s.failures[path]; len(queue) > 0 {
		status = queue[0]
		s.failures[path] = queue[1:]
	}
	employees := s.employees
	s.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}

	want := "Basic " + base64.StdEncoding.EncodeToString([]byte(s.serviceUser+":"+s.token))
	if r.Header.Get("Authorization") != want {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	parts := strings.Split(path, "/")
	switch {
	case r.Method == http.MethodPost && path == "people/search":
		fmt.Fprintf(w, `{"employees": %s}`, employees)
	case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "people":
		s.mu.Lock()
		values, ok := s.subResources[parts[1]+"/"+parts[2]]
		s.mu.Unlock()
		if !ok {
			fmt.Fprint(w, `{}`)
			return
		}
		fmt.Fprintf(w, `{"values": %s}`, values)
	default:
		http.NotFound(w, r)
	}
}
