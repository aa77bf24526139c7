// Package testutil provides testing utilities for the SEFAZ price client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// SearchPath is the path the mock serves the product search on.
const SearchPath = "/sfz-economiza-alagoas-api/api/public/produto/pesquisa"

// MockResponse defines the behavior for one mock API response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Call records one request received by the mock.
type Call struct {
	GTIN       string
	RegionCode int
	Dias       int
	AppToken   string
}

// ContentItem describes one entry of a mocked "conteudo" list.
type ContentItem struct {
	GTIN          string
	Description   string
	SaleValue     string // JSON number literal, e.g. "5.99"
	SaleDate      string
	Establishment string
	Municipality  string
}

// MockPriceAPI is a configurable mock of the SEFAZ/AL price API.
type MockPriceAPI struct {
	server *httptest.Server

	mu        sync.Mutex
	responses map[string][]MockResponse // by GTIN, consumed in order, last one repeats
	fallback  MockResponse
	calls     []Call
}

// NewMockPriceAPI creates and starts a mock API. Unknown GTINs get an empty content list.
func NewMockPriceAPI() *MockPriceAPI {
	mock := &MockPriceAPI{
		responses: make(map[string][]MockResponse),
		fallback:  NewEmptyResponse(),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the full search endpoint URL.
func (m *MockPriceAPI) URL() string {
	return m.server.URL + SearchPath
}

// Close shuts down the mock server.
func (m *MockPriceAPI) Close() {
	m.server.Close()
}

// Reset clears recorded calls and configured responses.
func (m *MockPriceAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.responses = make(map[string][]MockResponse)
	m.fallback = NewEmptyResponse()
}

// SetResponses queues responses for a GTIN. The last one repeats.
func (m *MockPriceAPI) SetResponses(gtin string, resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[gtin] = append([]MockResponse(nil), resps...)
}

// SetFallback sets the response for GTINs without queued responses.
func (m *MockPriceAPI) SetFallback(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = resp
}

// Calls returns a copy of the recorded calls in arrival order.
func (m *MockPriceAPI) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// GetRequestCount returns the number of requests received.
func (m *MockPriceAPI) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *MockPriceAPI) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != SearchPath {
		http.Error(w, `{"error": "not found"}`, http.StatusNotFound)
		return
	}

	var body struct {
		Produto struct {
			GTIN string `json:"gtin"`
		} `json:"produto"`
		Estabelecimento struct {
			Municipio struct {
				CodigoIBGE int `json:"codigoIBGE"`
			} `json:"municipio"`
		} `json:"estabelecimento"`
		Dias int `json:"dias"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid body"}`, http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.calls = append(m.calls, Call{
		GTIN:       body.Produto.GTIN,
		RegionCode: body.Estabelecimento.Municipio.CodigoIBGE,
		Dias:       body.Dias,
		AppToken:   r.Header.Get("AppToken"),
	})
	resp := m.fallback
	if queue := m.responses[body.Produto.GTIN]; len(queue) > 0 {
		resp = queue[0]
		if len(queue) > 1 {
			m.responses[body.Produto.GTIN] = queue[1:]
		}
	}
	m.mu.Unlock()

	if resp.Delay > 0 {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(resp.Delay):
		}
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// ContentBody renders a search response body with the given entries.
func ContentBody(items ...ContentItem) string {
	entries := make([]string, 0, len(items))
	for _, it := range items {
		value := it.SaleValue
		if value == "" {
			value = "null"
		}
		entries = append(entries, fmt.Sprintf(
			`{"produto":{"gtin":%q,"descricao":%q,"venda":{"valorVenda":%s,"dataVenda":%q}},`+
				`"estabelecimento":{"nomeFantasia":%q,"endereco":{"municipio":%q}}}`,
			it.GTIN, it.Description, value, it.SaleDate, it.Establishment, it.Municipality))
	}
	return `{"totalRegistros":` + fmt.Sprint(len(items)) + `,"conteudo":[` + strings.Join(entries, ",") + `]}`
}

// NewContentResponse creates a 200 OK response with the given entries.
func NewContentResponse(items ...ContentItem) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       ContentBody(items...),
	}
}

// NewEmptyResponse creates a 200 OK response with an empty content list.
func NewEmptyResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"totalRegistros":0,"conteudo":[]}`,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
	}
}

// NewUnauthorizedResponse creates a 401 response, as sent for a bad AppToken.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"error": "AppToken invalido"}`,
	}
}

// NewMalformedResponse creates a 200 OK response whose body is not JSON.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `<html>maintenance</html>`,
		Headers:    map[string]string{"Content-Type": "text/html"},
	}
}

// NewSlowResponse wraps resp with a delay, for timeout tests.
func NewSlowResponse(resp MockResponse, delay time.Duration) MockResponse {
	resp.Delay = delay
	return resp
}
