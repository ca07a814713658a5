package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"wagerboard/internal/app/betting"
	"wagerboard/internal/app/challenge"
	"wagerboard/internal/app/gamble"
	"wagerboard/internal/ledger"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server exposes the ledger, challenge and betting operations as MCP tools
// so chat bots and agents can drive them without the REST surface.
type Server struct {
	ledger   *ledger.Ledger
	registry *challenge.Registry
	engine   *betting.Engine
	gamble   *gamble.Service

	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

func New(l *ledger.Ledger, reg *challenge.Registry, eng *betting.Engine, g *gamble.Service) *Server {
	mcpSrv := server.NewMCPServer(
		"wagerboard",
		"0.1.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
		server.WithResourceRecovery(),
	)
	s := &Server{
		ledger:     l,
		registry:   reg,
		engine:     eng,
		gamble:     g,
		mcpServer:  mcpSrv,
		httpServer: server.NewStreamableHTTPServer(mcpSrv, server.WithStateLess(true), server.WithDisableStreaming(true)),
	}
	s.registerPublicTools()
	s.registerBettingTools()
	s.registerResources()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer
}

func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"event://{scope}/{event_id}",
			"event_detail",
			mcp.WithTemplateDescription("Betting event with its bets grouped by outcome"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			raw := request.Params.URI
			scope, eventID, ok := parseEventURI(raw)
			if !ok {
				return nil, nil
			}
			detail, err := s.engine.GetEventDetail(ctx, scope, eventID)
			if err != nil {
				return nil, err
			}
			payload, err := json.Marshal(detail)
			if err != nil {
				return nil, err
			}
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      raw,
					MIMEType: "application/json",
					Text:     string(payload),
				},
			}, nil
		},
	)
}

func parseEventURI(raw string) (string, string, bool) {
	rest, ok := strings.CutPrefix(raw, "event://")
	if !ok {
		return "", "", false
	}
	scope, eventID, ok := strings.Cut(rest, "/")
	if !ok || scope == "" || eventID == "" || strings.Contains(eventID, "/") {
		return "", "", false
	}
	return scope, eventID, true
}
