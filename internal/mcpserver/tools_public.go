package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPublicTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_balance",
			mcp.WithDescription("Get a user's point balance, opening the account on first use"),
			mcp.WithString("user_id", mcp.Required(), mcp.Description("User id")),
		),
		s.handleGetBalance,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_leaderboard",
			mcp.WithDescription("Top users by balance"),
			mcp.WithNumber("limit", mcp.Description("Number of users, default 10")),
		),
		s.handleGetLeaderboard,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_challenges",
			mcp.WithDescription("List challenges by id"),
		),
		s.handleListChallenges,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_completions",
			mcp.WithDescription("List challenge completions per user"),
		),
		s.handleListCompletions,
	)
}

func (s *Server) handleGetBalance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return toolError("invalid_user", err.Error()), nil
	}
	bal, svcErr := s.ledger.GetBalance(ctx, userID)
	if svcErr != nil {
		return mapDomainError("get_balance", svcErr), nil
	}
	return toolResult(map[string]any{"user_id": userID, "balance": bal}), nil
}

func (s *Server) handleGetLeaderboard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", defaultLeaderboardLimit)
	items, err := s.ledger.ListTopUsers(ctx, limit)
	if err != nil {
		return mapDomainError("get_leaderboard", err), nil
	}
	return toolResult(map[string]any{"items": items}), nil
}

func (s *Server) handleListChallenges(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.registry.ListChallenges(ctx)
	if err != nil {
		return mapDomainError("list_challenges", err), nil
	}
	return toolResult(map[string]any{"items": items}), nil
}

func (s *Server) handleListCompletions(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.registry.ListCompletions(ctx)
	if err != nil {
		return mapDomainError("list_completions", err), nil
	}
	return toolResult(map[string]any{"items": items}), nil
}
