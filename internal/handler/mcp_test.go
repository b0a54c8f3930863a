package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"variant-sync/internal/session"
)

// jsonrpcRequest is a JSON-RPC 2.0 request structure for testing.
type jsonrpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// jsonrpcResponse is a JSON-RPC 2.0 response structure for testing.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolCallParams represents the params for tools/call method.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// callToolResult is the expected result structure from a tool call.
type callToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	IsError bool `json:"isError,omitempty"`
}

func TestMCPServerCreation(t *testing.T) {
	h, _, _ := testHandler(t)

	if h.NewMCPServer() == nil {
		t.Fatal("NewMCPServer returned nil")
	}
	if h.NewMCPHandler() == nil {
		t.Fatal("NewMCPHandler returned nil")
	}
}

func TestMCPInitialize(t *testing.T) {
	_, mux, _ := testHandler(t)

	if sessionID := initMCPSession(t, mux); sessionID == "" {
		t.Error("expected Mcp-Session-Id header")
	}
}

func TestMCPToolsList(t *testing.T) {
	_, mux, _ := testHandler(t)
	sessionID := initMCPSession(t, mux)

	resp := mcpCall(t, mux, sessionID, jsonrpcRequest{JSONRPC: "2.0", ID: 2, Method: "tools/list"})
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}

	var toolsResult struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &toolsResult); err != nil {
		t.Fatalf("Failed to parse tools result: %v", err)
	}

	expectedTools := map[string]bool{
		"open_product":   false,
		"select_options": false,
		"get_session":    false,
		"cart_updated":   false,
		"close_session":  false,
	}
	for _, tool := range toolsResult.Tools {
		if _, ok := expectedTools[tool.Name]; ok {
			expectedTools[tool.Name] = true
		}
	}
	for name, found := range expectedTools {
		if !found {
			t.Errorf("Expected tool %q not found in tools list", name)
		}
	}
}

func TestMCPSessionLifecycle(t *testing.T) {
	_, mux, fetcher := testHandler(t)
	fetcher.Pages["/products/tee?variant=501&section_id=main"] = `<div id="Quantity-Form-main">` +
		`<input class="quantity__input" data-cart-quantity="1" data-min="1" data-max="3" step="1"></div>`
	mcpSession := initMCPSession(t, mux)

	opened := callTool(t, mux, mcpSession, "open_product", map[string]interface{}{
		"product_url": "/products/tee",
	})
	if opened.ID == "" || opened.Product.VariantID != "501" {
		t.Fatalf("open_product = %+v", opened)
	}

	selected := callTool(t, mux, mcpSession, "select_options", map[string]interface{}{
		"id":        opened.ID,
		"selection": []string{"Blue"},
	})
	if selected.Product.VariantID != "502" {
		t.Errorf("select_options VariantID = %s, want 502", selected.Product.VariantID)
	}

	got := callTool(t, mux, mcpSession, "get_session", map[string]interface{}{"id": opened.ID})
	if got.Product.VisibleURL != "/products/tee?variant=502" {
		t.Errorf("get_session VisibleURL = %q", got.Product.VisibleURL)
	}

	// back to the red variant, whose quantity rules the cart refresh fetches
	callTool(t, mux, mcpSession, "select_options", map[string]interface{}{
		"id":         opened.ID,
		"variant_id": "501",
	})
	updated := callTool(t, mux, mcpSession, "cart_updated", map[string]interface{}{
		"id":     opened.ID,
		"source": "cart-drawer",
	})
	if q := updated.Product.Quantity; q == nil || q.Max == nil || *q.Max != 2 {
		t.Errorf("cart_updated quantity = %+v, want max 2", q)
	}

	result := callToolRaw(t, mux, mcpSession, "close_session", map[string]interface{}{"id": opened.ID})
	if result.IsError {
		t.Errorf("close_session failed: %+v", result)
	}

	result = callToolRaw(t, mux, mcpSession, "get_session", map[string]interface{}{"id": opened.ID})
	if !result.IsError || !strings.Contains(result.Content[0].Text, "NOT_FOUND") {
		t.Errorf("get_session after close = %+v, want NOT_FOUND error", result)
	}
}

func TestMCPSelectOptionsRequiresInput(t *testing.T) {
	_, mux, _ := testHandler(t)
	mcpSession := initMCPSession(t, mux)

	opened := callTool(t, mux, mcpSession, "open_product", map[string]interface{}{"product_url": "/products/tee"})

	result := callToolRaw(t, mux, mcpSession, "select_options", map[string]interface{}{"id": opened.ID})
	if !result.IsError {
		t.Errorf("select_options without selection = %+v, want error", result)
	}
}

func TestMCPOpenProductUpstreamError(t *testing.T) {
	_, mux, _ := testHandler(t)
	mcpSession := initMCPSession(t, mux)

	result := callToolRaw(t, mux, mcpSession, "open_product", map[string]interface{}{"product_url": "/products/nope"})
	if !result.IsError || !strings.Contains(result.Content[0].Text, "UPSTREAM_ERROR") {
		t.Errorf("open_product = %+v, want UPSTREAM_ERROR", result)
	}
}

// callTool invokes a tool and decodes its session view.
func callTool(t *testing.T, mux *http.ServeMux, mcpSession, name string, args map[string]interface{}) session.View {
	t.Helper()
	result := callToolRaw(t, mux, mcpSession, name, args)
	if result.IsError || len(result.Content) == 0 {
		t.Fatalf("%s failed: %+v", name, result)
	}

	var view session.View
	if err := json.Unmarshal([]byte(result.Content[0].Text), &view); err != nil {
		t.Fatalf("%s: parse view: %v", name, err)
	}
	return view
}

func callToolRaw(t *testing.T, mux *http.ServeMux, mcpSession, name string, args map[string]interface{}) callToolResult {
	t.Helper()
	argBytes, _ := json.Marshal(args)
	resp := mcpCall(t, mux, mcpSession, jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/call",
		Params:  toolCallParams{Name: name, Arguments: argBytes},
	})
	if resp.Error != nil {
		t.Fatalf("%s: unexpected JSON-RPC error: %+v", name, resp.Error)
	}

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("%s: parse result: %v", name, err)
	}
	return result
}

func mcpCall(t *testing.T, mux *http.ServeMux, mcpSession string, req jsonrpcRequest) jsonrpcResponse {
	t.Helper()
	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, mcpSession)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}

	jsonData, err := parseSSEResponse(w.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}
	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v\nBody: %s", err, string(jsonData))
	}
	return resp
}

// setMCPHeaders sets the required headers for MCP Streamable HTTP requests.
func setMCPHeaders(req *http.Request, sessionID string) {
	req.Header.Set("Content-Type", "application/json")
	// MCP Streamable HTTP requires Accept header with both json and event-stream
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
}

// parseSSEResponse extracts JSON data from SSE formatted response.
// SSE format: "event: message\ndata: {json}\n\n"
func parseSSEResponse(body string) ([]byte, error) {
	lines := strings.Split(body, "\n")
	for _, line := range lines {
		if strings.HasPrefix(line, "data: ") {
			return []byte(strings.TrimPrefix(line, "data: ")), nil
		}
	}
	// If no SSE format found, assume plain JSON
	return []byte(body), nil
}

// initMCPSession initializes an MCP session and returns the session ID.
func initMCPSession(t *testing.T, mux *http.ServeMux) string {
	t.Helper()

	initReq := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]interface{}{
			"protocolVersion": "2025-06-18",
			"clientInfo":      map[string]string{"name": "test", "version": "1.0"},
			"capabilities":    map[string]interface{}{},
		},
	}

	body, _ := json.Marshal(initReq)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, "")
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Failed to initialize MCP session: %s", w.Body.String())
	}

	return w.Header().Get("Mcp-Session-Id")
}
