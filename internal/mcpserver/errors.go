package mcpserver

import (
	"fmt"

	"wagerboard/internal/apperr"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"
)

func toolResult(data any) *mcp.CallToolResult {
	return mcp.NewToolResultStructuredOnly(data)
}

func toolError(code, message string) *mcp.CallToolResult {
	result := mcp.NewToolResultStructured(
		map[string]any{
			"error": map[string]any{
				"code":    code,
				"message": message,
			},
		},
		fmt.Sprintf("%s: %s", code, message),
	)
	result.IsError = true
	return result
}

// mapDomainError reports err under its public code. Storage and unknown
// failures are logged and their cause is not echoed to the caller.
func mapDomainError(tool string, err error) *mcp.CallToolResult {
	if err == nil {
		return toolError("internal_error", "unknown error")
	}
	code := apperr.Code(err)
	switch apperr.KindOf(err) {
	case apperr.KindStorage, apperr.KindUnknown:
		log.Error().Err(err).Str("tool", tool).Msg("mcp tool failed")
		return toolError(code, code)
	default:
		return toolError(code, err.Error())
	}
}
