package kit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type echoRequest struct {
	Word string `json:"word"`
}

func TestJSONArgs(t *testing.T) {
	decode := JSONArgs[echoRequest]()

	got, err := decode(&mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(`{"word":"hi"}`)}})
	if err != nil {
		t.Fatal(err)
	}
	if r := got.Request.(*echoRequest); r.Word != "hi" {
		t.Fatalf("word: got %q", r.Word)
	}

	got, err = decode(&mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{}})
	if err != nil {
		t.Fatal(err)
	}
	if r := got.Request.(*echoRequest); r.Word != "" {
		t.Fatalf("zero value: got %q", r.Word)
	}

	if _, err := decode(&mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(`[`)}}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRegisterMCPTool(t *testing.T) {
	impl := &mcp.Implementation{Name: "kit-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)

	var seen struct{ transport, requestID string }
	echo := func(ctx context.Context, req any) (any, error) {
		seen.transport = GetTransport(ctx)
		seen.requestID = GetRequestID(ctx)
		r := req.(*echoRequest)
		if r.Word == "" {
			return nil, errors.New("no word")
		}
		return map[string]string{"echo": r.Word}, nil
	}
	RegisterMCPTool(srv, &mcp.Tool{
		Name:        "echo",
		InputSchema: map[string]any{"type": "object"},
	}, echo, JSONArgs[echoRequest]())

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	session, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "echo", Arguments: map[string]any{"word": "hi"}})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}
	if text := res.Content[0].(*mcp.TextContent).Text; text != `{"echo":"hi"}` {
		t.Fatalf("content: got %s", text)
	}
	if seen.transport != "mcp" || !strings.HasPrefix(seen.requestID, "mcp_") {
		t.Fatalf("context: transport %q, request id %q", seen.transport, seen.requestID)
	}

	res, err = session.CallTool(ctx, &mcp.CallToolParams{Name: "echo", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Fatal("endpoint error should be a tool error")
	}
}
