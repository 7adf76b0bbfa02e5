package clipkeep

import (
	"context"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/clipkeep/export"
	"github.com/hazyhaar/clipkeep/history"
	"github.com/hazyhaar/clipkeep/kit"
	"github.com/hazyhaar/clipkeep/shim"
)

// RegisterMCP registers the clipkeep tools on an MCP server.
func (k *Keeper) RegisterMCP(srv *mcp.Server) {
	k.registerListTool(srv)
	k.registerDeleteTool(srv)
	k.registerClearTool(srv)
	k.registerExportTool(srv)
	k.registerCopyTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// logged records every tool call with its duration and outcome.
func (k *Keeper) logged(tool string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			log := k.logger.With("tool", tool, "transport", kit.GetTransport(ctx),
				"request_id", kit.GetRequestID(ctx), "duration", time.Since(start))
			if err != nil {
				log.Warn("clipkeep: tool failed", "error", err)
			} else {
				log.Debug("clipkeep: tool call")
			}
			return resp, err
		}
	}
}

func (k *Keeper) register(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode kit.MCPDecoder) {
	kit.RegisterMCPTool(srv, tool, kit.Chain(k.logged(tool.Name))(endpoint), decode)
}

// --- list ---

type listRequest struct {
	URL string `json:"url,omitempty"`
}

func (k *Keeper) registerListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clipkeep_list",
		Description: "List the clipboard history, newest first. Optionally only the captures of one page URL.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Only records captured on this exact URL"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*listRequest)
		var (
			list []history.Record
			err  error
		)
		if r.URL != "" {
			list, err = k.store.ForURL(ctx, r.URL)
		} else {
			list, err = k.store.List(ctx)
		}
		if err != nil {
			return nil, err
		}
		if list == nil {
			list = []history.Record{}
		}
		return list, nil
	}

	k.register(srv, tool, endpoint, kit.JSONArgs[listRequest]())
}

// --- delete ---

type deleteRequest struct {
	ID int64 `json:"id"`
}

func (k *Keeper) registerDeleteTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clipkeep_delete",
		Description: "Delete one record by id. Returns the remaining history; an unknown id changes nothing.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "integer", "description": "Record id"},
		}, []string{"id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*deleteRequest)
		return k.store.Remove(ctx, r.ID)
	}

	k.register(srv, tool, endpoint, kit.JSONArgs[deleteRequest]())
}

// --- clear ---

type clearRequest struct {
	Confirm bool `json:"confirm"`
}

var errNotConfirmed = errors.New("clear not confirmed: pass confirm=true")

func (k *Keeper) registerClearTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clipkeep_clear",
		Description: "Delete the whole clipboard history. Requires confirm=true.",
		InputSchema: inputSchema(map[string]any{
			"confirm": map[string]any{"type": "boolean", "description": "Must be true"},
		}, []string{"confirm"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*clearRequest)
		if !r.Confirm {
			return nil, errNotConfirmed
		}
		if err := k.store.Clear(ctx); err != nil {
			return nil, err
		}
		return map[string]string{"status": "cleared"}, nil
	}

	k.register(srv, tool, endpoint, kit.JSONArgs[clearRequest]())
}

// --- export ---

type exportRequest struct {
	Format string `json:"format,omitempty"`
}

type exportResponse struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

func (k *Keeper) registerExportTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clipkeep_export",
		Description: "Render the history as a document: doc (Word HTML, default) or md (Markdown).",
		InputSchema: inputSchema(map[string]any{
			"format": map[string]any{"type": "string", "enum": []any{"doc", "md"}, "description": "Document format (default doc)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*exportRequest)
		format, err := export.ParseFormat(r.Format)
		if err != nil {
			return nil, err
		}
		doc, name, err := k.Export(ctx, format)
		if err != nil {
			return nil, err
		}
		return exportResponse{Filename: name, ContentType: format.ContentType(), Content: string(doc)}, nil
	}

	k.register(srv, tool, endpoint, kit.JSONArgs[exportRequest]())
}

// --- copy ---

type copyRequest struct {
	Text  string `json:"text"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

func (k *Keeper) registerCopyTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clipkeep_copy",
		Description: "Copy text to the clipboard as a page's Copy button would. The copy is captured into the history unless it repeats the newest record.",
		InputSchema: inputSchema(map[string]any{
			"text":  map[string]any{"type": "string", "description": "Text to copy"},
			"url":   map[string]any{"type": "string", "description": "Page the copy is attributed to"},
			"title": map[string]any{"type": "string", "description": "Title of that page"},
		}, []string{"text"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*copyRequest)
		out, err := k.Copy(ctx, r.Text, r.URL, r.Title)
		if errors.Is(err, shim.ErrNoClipboard) {
			return map[string]string{"outcome": out.String(), "clipboard": "unavailable"}, nil
		}
		if err != nil {
			return nil, err
		}
		return map[string]string{"outcome": out.String()}, nil
	}

	k.register(srv, tool, endpoint, kit.JSONArgs[copyRequest]())
}
