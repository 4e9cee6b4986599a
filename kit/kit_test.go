package kit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}

	base := func(_ context.Context, _ any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	chained := Chain(mw("a"), mw("b"))(base)
	resp, err := chained(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "ok" {
		t.Fatalf("response: got %v", resp)
	}

	expected := []string{"a_before", "b_before", "endpoint", "b_after", "a_after"}
	if strings.Join(order, ",") != strings.Join(expected, ",") {
		t.Fatalf("order: got %v, want %v", order, expected)
	}
}

func TestLogging_Failure(t *testing.T) {
	// WHAT: Failed calls are logged at Warn with endpoint and request id.
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	errFail := errors.New("fail")
	ep := Logging(logger, "neet_process")(func(_ context.Context, _ any) (any, error) {
		return nil, errFail
	})

	ctx := WithRequestID(context.Background(), "req_1")
	if _, err := ep(ctx, nil); !errors.Is(err, errFail) {
		t.Fatalf("error: got %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"level":"WARN"`, `"endpoint":"neet_process"`, `"request_id":"req_1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %s: %s", want, out)
		}
	}
}

func TestContext_Transport(t *testing.T) {
	if v := GetTransport(context.Background()); v != "http" {
		t.Fatalf("default transport: got %q, want 'http'", v)
	}
	if v := GetTransport(WithTransport(context.Background(), "mcp")); v != "mcp" {
		t.Fatalf("transport: got %q", v)
	}
}

func TestContext_RequestID(t *testing.T) {
	if v := GetRequestID(context.Background()); v != "" {
		t.Fatalf("request_id default: got %q", v)
	}
	ctx := WithRequestID(context.Background(), "req_abc")
	if v := GetRequestID(ctx); v != "req_abc" {
		t.Fatalf("request_id: got %q", v)
	}
}

func TestDecodeJSON(t *testing.T) {
	type req struct {
		Path string `json:"path"`
	}
	decode := DecodeJSON[req]()

	call := &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(`{"path":"/x.pdf"}`)}}
	res, err := decode(call)
	if err != nil {
		t.Fatal(err)
	}
	if r := res.Request.(*req); r.Path != "/x.pdf" {
		t.Fatalf("path: got %q", r.Path)
	}

	bad := &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(`{"path":`)}}
	if _, err := decode(bad); err == nil {
		t.Fatal("expected error for malformed arguments")
	}
}

func TestRecover(t *testing.T) {
	// WHAT: A panicking endpoint returns an error instead of crashing.
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	ep := Chain(Logging(logger, "neet_process"), Recover(logger))(func(context.Context, any) (any, error) {
		var m map[string]int
		m["x"] = 1
		return nil, nil
	})
	resp, err := ep(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "internal error") || resp != nil {
		t.Fatalf("got %v, %v", resp, err)
	}
}
