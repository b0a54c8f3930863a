// MCP transport handler using the official MCP Go SDK.
// Exposes product sessions as MCP tools.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"variant-sync/internal/model"
	"variant-sync/internal/pubsub"
	"variant-sync/internal/session"
	"variant-sync/internal/variant"
)

// === MCP Tool Input Types ===

// OpenProductInput is the input schema for open_product tool.
type OpenProductInput struct {
	ProductURL   string `json:"product_url" jsonschema:"storefront product URL path, e.g. /products/tee"`
	SectionID    string `json:"section_id,omitempty" jsonschema:"load only this section instead of the full page"`
	UpdateURL    string `json:"update_url,omitempty" jsonschema:"true to replace the page address on changes, false to freeze it"`
	ForceRefetch bool   `json:"force_refetch,omitempty" jsonschema:"always fetch a fragment even when the variant resolves locally"`
	ThemeVersion string `json:"theme_version,omitempty" jsonschema:"theme version; option_values is sent from v13.0.0"`
}

// SessionInput identifies a session.
type SessionInput struct {
	ID string `json:"id" jsonschema:"session ID"`
}

// SelectOptionsInput is the input schema for select_options tool.
type SelectOptionsInput struct {
	ID             string   `json:"id" jsonschema:"session ID"`
	Selection      []string `json:"selection,omitempty" jsonschema:"option values in option order"`
	OptionValueIDs []string `json:"option_value_ids,omitempty" jsonschema:"storefront option value ids"`
	VariantID      string   `json:"variant_id,omitempty" jsonschema:"clicked variant id"`
	ProductURL     string   `json:"product_url,omitempty" jsonschema:"product URL when the option links to another product"`
}

// CartUpdatedInput is the input schema for cart_updated tool.
type CartUpdatedInput struct {
	ID        string `json:"id" jsonschema:"session ID"`
	Source    string `json:"source,omitempty" jsonschema:"component that changed the cart"`
	VariantID string `json:"variant_id,omitempty" jsonschema:"variant whose line changed"`
}

// NewMCPServer creates an MCP server with session tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "variant-sync",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Variant sync - open a storefront product page, then pick option values " +
				"to see the resolved variant, price, availability and media the page would show.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "open_product",
		Description: "Load a product page into a new session.",
	}, h.mcpOpenProduct)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "select_options",
		Description: "Pick option values (or a variant id) in a session.",
	}, h.mcpSelectOptions)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_session",
		Description: "Get the current state of a session.",
	}, h.mcpGetSession)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cart_updated",
		Description: "Tell a session the cart changed so it refreshes quantity rules.",
	}, h.mcpCartUpdated)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "close_session",
		Description: "Close a session.",
	}, h.mcpCloseSession)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpOpenProduct(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input OpenProductInput,
) (*mcp.CallToolResult, any, error) {
	if input.ProductURL == "" {
		return nil, nil, errors.New("product_url is required")
	}

	sess, err := h.sessions.Open(ctx, session.OpenRequest{
		ProductURL:   input.ProductURL,
		SectionID:    input.SectionID,
		UpdateURL:    input.UpdateURL,
		ForceRefetch: input.ForceRefetch,
		ThemeVersion: input.ThemeVersion,
	})
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.mcpResult(sess.View())
}

func (h *Handler) mcpSelectOptions(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SelectOptionsInput,
) (*mcp.CallToolResult, any, error) {
	sess, err := h.mcpSession(input.ID)
	if err != nil {
		return nil, nil, err
	}
	if len(input.Selection) == 0 && input.VariantID == "" {
		return nil, nil, errors.New("selection or variant_id is required")
	}

	err = sess.SelectOptions(ctx, pubsub.OptionChange{
		Selection:      variant.NewSelection(input.Selection...),
		OptionValueIDs: input.OptionValueIDs,
		VariantID:      variant.ID(input.VariantID),
		ProductURL:     input.ProductURL,
	})
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.mcpResult(sess.View())
}

func (h *Handler) mcpGetSession(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, any, error) {
	sess, err := h.mcpSession(input.ID)
	if err != nil {
		return nil, nil, err
	}
	return h.mcpResult(sess.View())
}

func (h *Handler) mcpCartUpdated(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input CartUpdatedInput,
) (*mcp.CallToolResult, any, error) {
	sess, err := h.mcpSession(input.ID)
	if err != nil {
		return nil, nil, err
	}

	err = sess.CartUpdated(ctx, pubsub.CartUpdated{Source: input.Source, VariantID: variant.ID(input.VariantID)})
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.mcpResult(sess.View())
}

func (h *Handler) mcpCloseSession(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, any, error) {
	if input.ID == "" {
		return nil, nil, errors.New("id is required")
	}
	if err := h.sessions.Close(input.ID); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.mcpResult(map[string]string{"id": input.ID, "status": "closed"})
}

func (h *Handler) mcpSession(id string) (*session.Session, error) {
	if id == "" {
		return nil, errors.New("id is required")
	}
	sess, err := h.sessions.Get(id)
	if err != nil {
		return nil, h.mcpError(err)
	}
	return sess, nil
}

// mcpResult renders v as the tool's JSON text content. Variant ids encode
// as numbers, so no output schema is declared.
func (h *Handler) mcpResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

// mcpError converts session errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
