package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerBettingTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_open_events",
			mcp.WithDescription("List betting events in a scope that still accept bets"),
			mcp.WithString("scope", mcp.Required(), mcp.Description("Scope id")),
		),
		s.handleListOpenEvents,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_event",
			mcp.WithDescription("Get an event with its bets grouped by outcome"),
			mcp.WithString("scope", mcp.Required(), mcp.Description("Scope id")),
			mcp.WithString("event_id", mcp.Required(), mcp.Description("Event id")),
		),
		s.handleGetEvent,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"place_bet",
			mcp.WithDescription("Stake points on one outcome of an open event"),
			mcp.WithString("scope", mcp.Required(), mcp.Description("Scope id")),
			mcp.WithString("event_id", mcp.Required(), mcp.Description("Event id")),
			mcp.WithString("user_id", mcp.Required(), mcp.Description("Bettor user id")),
			mcp.WithString("outcome", mcp.Required(), mcp.Description("Outcome name, case-insensitive")),
			mcp.WithNumber("amount", mcp.Required(), mcp.Description("Stake in points, positive integer")),
		),
		s.handlePlaceBet,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"fifty_fifty",
			mcp.WithDescription("Double or lose a stake on a coin flip"),
			mcp.WithString("user_id", mcp.Required(), mcp.Description("User id")),
			mcp.WithNumber("amount", mcp.Required(), mcp.Description("Stake in points, positive integer")),
		),
		s.handleFiftyFifty,
	)
}

func (s *Server) handleListOpenEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope, err := request.RequireString("scope")
	if err != nil {
		return toolError("invalid_scope", err.Error()), nil
	}
	items, svcErr := s.engine.ListOpenEvents(ctx, scope)
	if svcErr != nil {
		return mapDomainError("list_open_events", svcErr), nil
	}
	return toolResult(map[string]any{"items": items}), nil
}

func (s *Server) handleGetEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope := request.GetString("scope", "")
	eventID := request.GetString("event_id", "")
	d, err := s.engine.GetEventDetail(ctx, scope, eventID)
	if err != nil {
		return mapDomainError("get_event", err), nil
	}
	return toolResult(d), nil
}

func (s *Server) handlePlaceBet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireFloat("amount")
	if err != nil {
		return toolError("invalid_amount", err.Error()), nil
	}
	amount, err := wholeAmount(raw)
	if err != nil {
		return mapDomainError("place_bet", err), nil
	}
	conf, err := s.engine.PlaceBet(ctx,
		request.GetString("scope", ""),
		request.GetString("event_id", ""),
		request.GetString("user_id", ""),
		request.GetString("outcome", ""),
		amount,
	)
	if err != nil {
		return mapDomainError("place_bet", err), nil
	}
	return toolResult(conf), nil
}

func (s *Server) handleFiftyFifty(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireFloat("amount")
	if err != nil {
		return toolError("invalid_amount", err.Error()), nil
	}
	amount, err := wholeAmount(raw)
	if err != nil {
		return mapDomainError("fifty_fifty", err), nil
	}
	res, err := s.gamble.FiftyFifty(ctx, request.GetString("user_id", ""), amount)
	if err != nil {
		return mapDomainError("fifty_fifty", err), nil
	}
	return toolResult(res), nil
}
