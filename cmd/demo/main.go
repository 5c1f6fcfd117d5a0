// Command demo runs a minimal MCP server over stdio: one "echo" tool,
// one static resource, and one prompt, wired through the same Router
// and transport.Transport every other entry point in this module uses.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/turbomcp/turbomcp-go/corelog"
	"github.com/turbomcp/turbomcp-go/handler"
	"github.com/turbomcp/turbomcp-go/protocol"
	"github.com/turbomcp/turbomcp-go/task"
	"github.com/turbomcp/turbomcp-go/telemetry"
	"github.com/turbomcp/turbomcp-go/transport"
	"github.com/turbomcp/turbomcp-go/wire"
)

// metricsAddr is the listen address for the Prometheus "/metrics"
// endpoint exposing this server's transport counters.
const metricsAddr = "127.0.0.1:9469"

func main() {
	ctx := context.Background()

	b := handler.NewBuilder()
	if err := b.AddTool(echoTool()); err != nil {
		panic(err)
	}
	if err := b.AddResource(motdResource()); err != nil {
		panic(err)
	}
	if err := b.AddPrompt(greetingPrompt()); err != nil {
		panic(err)
	}
	registry := b.Build()

	cfg := protocol.ServerConfig{
		Info:              protocol.ServerInfo{Name: "turbomcp-demo", Version: "0.1.0"},
		SupportedVersions: []string{"2025-11-25", "2025-06-18"},
		AllowFallback:     true,
		Capabilities: protocol.Capabilities{
			Tools:     &protocol.ToolsCapability{ListChanged: false},
			Resources: &protocol.ResourcesCapability{ListChanged: false},
			Prompts:   &protocol.PromptsCapability{ListChanged: false},
		},
	}
	router := protocol.NewRouter(cfg, registry, task.NewMemStore(nil), protocol.NewSchemaValidator(), nil)

	stdio := transport.NewStdio(os.Stdin, os.Stdout, wire.JSONCodec{}, transport.DefaultMaxMessageSize)
	if err := stdio.Connect(ctx); err != nil {
		corelog.Error(ctx, "demo: connect failed", "error", err.Error())
		os.Exit(1)
	}
	defer stdio.Disconnect(ctx)

	startMetricsServer(ctx, stdio)

	serve(ctx, stdio, router)
}

// startMetricsServer samples stdio's Snapshot into both the OTel
// metrics facade and a Prometheus registry, serving the latter at
// "/metrics" for a Grafana/Prometheus scraper.
func startMetricsServer(ctx context.Context, t transport.Transport) {
	prom := telemetry.NewPrometheusTransportExporter(string(t.Kind()))
	reporter := telemetry.NewReporter(t, telemetry.NewOTelMetrics(), prom, 15*time.Second)
	go reporter.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", prom.Handler())
	srv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			corelog.Warn(ctx, "demo: metrics server stopped", "error", err.Error())
		}
	}()
}

// serve pumps framed messages from t through router until Receive
// returns an error, mirroring the loop every transport-bound command
// in this module runs.
func serve(ctx context.Context, t transport.Transport, router *protocol.Router) {
	for {
		msg, err := t.Receive(ctx)
		if err != nil {
			corelog.Warn(ctx, "demo: receive failed", "error", err.Error())
			return
		}
		if msg == nil {
			return
		}

		var req protocol.Request
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			corelog.Warn(ctx, "demo: malformed request", "error", err.Error())
			continue
		}

		rc := protocol.NewRequestContext(ctx)
		resp := router.Handle(ctx, rc, req)
		if resp == nil {
			continue
		}

		raw, err := json.Marshal(resp)
		if err != nil {
			corelog.Error(ctx, "demo: failed to marshal response", "error", err.Error())
			continue
		}
		if err := t.Send(ctx, transport.Message{ID: resp.ID, Payload: raw}); err != nil {
			corelog.Warn(ctx, "demo: send failed", "error", err.Error())
		}
	}
}

type echoArgs struct {
	Text string `json:"text"`
}

func echoTool() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:        "echo",
		Description: "Echoes the given text back as tool output.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"text": {"type": "string"}},
			"required": ["text"]
		}`),
		Handler: func(_ context.Context, _ protocol.RequestContext, args json.RawMessage) ([]protocol.Content, error) {
			var a echoArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return nil, err
			}
			return []protocol.Content{protocol.NewTextContent(a.Text)}, nil
		},
	}
}

func motdResource() protocol.ResourceDefinition {
	return protocol.ResourceDefinition{
		URI:         "demo://motd",
		Name:        "Message of the day",
		Description: "A static greeting resource.",
		MimeType:    "text/plain",
		Handler: func(_ context.Context, _ protocol.RequestContext, _ string) ([]protocol.Content, error) {
			return []protocol.Content{protocol.NewTextContent("Hello from turbomcp-go.")}, nil
		},
	}
}

func greetingPrompt() protocol.PromptDefinition {
	return protocol.PromptDefinition{
		Name:        "greeting",
		Description: "Renders a greeting for the named user.",
		Arguments:   []protocol.PromptArgument{{Name: "name", Description: "Who to greet", Required: true}},
		Handler: func(_ context.Context, _ protocol.RequestContext, args map[string]string) ([]protocol.PromptMessage, error) {
			name := args["name"]
			if name == "" {
				name = "there"
			}
			return []protocol.PromptMessage{
				{Role: "user", Content: protocol.NewTextContent(fmt.Sprintf("Say hello to %s.", name))},
			}, nil
		},
	}
}
