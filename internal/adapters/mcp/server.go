package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/fin-extract/internal/core/domain"
	"github.com/kirillkom/fin-extract/internal/core/ports"
)

const (
	ToolExtract   = "extract_financials"
	ToolAggregate = "aggregate_financials"
)

type Server struct {
	extractor  ports.FinancialsExtractor
	aggregator ports.SeriesAggregator
	mcp        *server.MCPServer
}

func NewServer(version string, extractor ports.FinancialsExtractor, aggregator ports.SeriesAggregator) *Server {
	s := &Server{
		extractor:  extractor,
		aggregator: aggregator,
		mcp:        server.NewMCPServer("fin-extract", version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool(ToolExtract,
		mcp.WithDescription("Extract balance sheet and income statement figures from a document URL (CSV, spreadsheet, PDF or image)."),
		mcp.WithString("file_url", mcp.Required(), mcp.Description("Public http(s) URL of the source document.")),
	), s.handleExtract)

	s.mcp.AddTool(mcp.NewTool(ToolAggregate,
		mcp.WithDescription("Fold structured financial records into per-company year series."),
		mcp.WithString("records_json", mcp.Required(), mcp.Description("JSON array of structured records, or a single record.")),
		mcp.WithBoolean("strict", mcp.Description("Abort on the first malformed record instead of skipping it.")),
	), s.handleAggregate)

	return s
}

// ServeStdio blocks until stdin closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleExtract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fileURL, err := req.RequireString("file_url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	record, err := s.extractor.Extract(ctx, fileURL)
	if err != nil {
		return toolError(ctx, ToolExtract, err), nil
	}
	return jsonResult(map[string]any{"id": record.ID, "structured": record.Structured})
}

func (s *Server) handleAggregate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("records_json")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	records, err := decodeRecords(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.aggregator.Aggregate(ctx, records, req.GetBool("strict", false))
	if err != nil {
		return toolError(ctx, ToolAggregate, err), nil
	}
	return jsonResult(result)
}

func decodeRecords(raw string) ([]domain.StructuredFinancials, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("records_json is empty")
	}
	if strings.HasPrefix(raw, "[") {
		var records []domain.StructuredFinancials
		if err := json.Unmarshal([]byte(raw), &records); err != nil {
			return nil, fmt.Errorf("records_json: %v", err)
		}
		return records, nil
	}
	var record domain.StructuredFinancials
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("records_json: %v", err)
	}
	return []domain.StructuredFinancials{record}, nil
}

func toolError(ctx context.Context, tool string, err error) *mcp.CallToolResult {
	slog.WarnContext(ctx, "mcp_tool_failed", "tool", tool, "error", err.Error())
	msg := err.Error()
	var parseErr *domain.ParseError
	if errors.As(err, &parseErr) && parseErr.Raw != "" {
		msg += "\nraw model output:\n" + parseErr.Raw
	}
	return mcp.NewToolResultError(msg)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
