// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the wellbeing entry tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/wellbeing/internal/analytics"
	"github.com/starford/wellbeing/internal/entryservice"
	"github.com/starford/wellbeing/internal/models"
)

// Server wraps the MCP server with the entry tools.
type Server struct {
	mcp *server.MCPServer
	svc *entryservice.Service
	now func() time.Time
}

// New creates a new MCP server with all tools registered.
func New(svc *entryservice.Service, version string) *Server {
	s := &Server{svc: svc, now: time.Now}

	s.mcp = server.NewMCPServer(
		"Wellbeing",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	phases := []string{
		string(models.PhaseAwareness), string(models.PhaseClarity),
		string(models.PhaseStrength), string(models.PhaseOwnership),
	}

	s.mcp.AddTool(mcp.NewTool("list_entries",
		mcp.WithDescription("List entries newest first, optionally filtered by phase or by an inclusive date range."),
		mcp.WithString("phase", mcp.Description("Only entries of this phase"), mcp.Enum(phases...)),
		mcp.WithString("from", mcp.Description("Inclusive start date (YYYY-MM-DD); requires to")),
		mcp.WithString("to", mcp.Description("Inclusive end date (YYYY-MM-DD); requires from")),
	), s.listEntries)

	s.mcp.AddTool(mcp.NewTool("get_entry",
		mcp.WithDescription("Read one entry by id or by date."),
		mcp.WithNumber("id", mcp.Description("Entry id")),
		mcp.WithString("date", mcp.Description("Entry date (YYYY-MM-DD)")),
	), s.getEntry)

	saveOpts := []mcp.ToolOption{
		mcp.WithDescription("Create or update the entry for a date. Omitted metrics keep their stored value. " +
			"Read the format first via the get_entry_format tool or the " + entryFormatURI + " resource."),
		mcp.WithString("date", mcp.Required(), mcp.Description("Entry date (YYYY-MM-DD)")),
		mcp.WithString("phase", mcp.Required(), mcp.Description("Programme phase"), mcp.Enum(phases...)),
	}
	for _, m := range models.MetricCatalog() {
		saveOpts = append(saveOpts, mcp.WithNumber(string(m.Key),
			mcp.Description(m.Label+" score, 0 to 10"), mcp.Min(models.MinScore), mcp.Max(models.MaxScore)))
	}
	s.mcp.AddTool(mcp.NewTool("save_entry", saveOpts...), s.saveEntry)

	s.mcp.AddTool(mcp.NewTool("delete_entry",
		mcp.WithDescription("Delete an entry by id."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Entry id")),
	), s.deleteEntry)

	s.mcp.AddTool(mcp.NewTool("search_entries",
		mcp.WithDescription("Find entries whose long date (e.g. \"Monday, 8 January\"), phase or score contains the query."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
	), s.searchEntries)

	s.mcp.AddTool(mcp.NewTool("get_trends",
		mcp.WithDescription("Average scores for a period and their change against the previous period."),
		mcp.WithString("period", mcp.Description("week (default), month or all"), mcp.Enum("week", "month", "all")),
		mcp.WithString("anchor", mcp.Description("Reference date (YYYY-MM-DD), default today")),
	), s.getTrends)

	s.mcp.AddTool(mcp.NewTool("export_entries",
		mcp.WithDescription("Return every entry as the JSON export array."),
	), s.exportEntries)

	s.mcp.AddTool(mcp.NewTool("import_entries",
		mcp.WithDescription("Import a JSON export. Pass the array as json, or a source that is an "+
			"http(s) URL or a data:application/json;base64 URI. All-or-nothing."),
		mcp.WithString("json", mcp.Description("The export array as text")),
		mcp.WithString("source", mcp.Description("URL or data URI of an export file")),
	), s.importEntries)

	s.mcp.AddTool(mcp.NewTool("get_entry_format",
		mcp.WithDescription("Returns the entry format, phases and score rules. "+
			"Call this before saving or importing entries."),
	), s.getEntryFormat)

	// Resource: entry format contract.
	s.mcp.AddResource(
		mcp.NewResource(entryFormatURI, "Entry Format",
			mcp.WithResourceDescription("The JSON entry shape, phases and score rules."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readEntryFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listEntries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phase := req.GetString("phase", "")
	from, to := req.GetString("from", ""), req.GetString("to", "")

	var (
		entries []models.Entry
		err     error
	)
	switch {
	case phase != "":
		entries, err = s.svc.ListByPhase(ctx, models.Phase(phase))
	case from != "" || to != "":
		entries, err = s.svc.ListByDateRange(ctx, from, to)
	default:
		entries, err = s.svc.List(ctx)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("no entries found"), nil
	}
	return jsonResult(entries)
}

func (s *Server) getEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		e   *models.Entry
		err error
	)
	if id := req.GetInt("id", 0); id > 0 {
		e, err = s.svc.Get(ctx, int64(id))
	} else if date := req.GetString("date", ""); date != "" {
		e, err = s.svc.GetByDate(ctx, date)
	} else {
		return mcp.NewToolResultError("either id or date is required"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(e)
}

func (s *Server) saveEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date, err := req.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	phase, err := req.RequireString("phase")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	c := models.Candidate{Date: date, Phase: models.Phase(phase)}
	args := req.GetArguments()
	for _, key := range models.MetricKeys() {
		if _, ok := args[string(key)]; !ok {
			continue
		}
		v, err := req.RequireFloat(string(key))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		c.Metrics.Set(key, v)
	}

	res := s.svc.SaveEntry(ctx, c)
	if !res.Success {
		return mcp.NewToolResultError(res.Error), nil
	}
	return jsonResult(res.Data)
}

func (s *Server) deleteEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res := s.svc.DeleteEntry(ctx, int64(id))
	if !res.Success {
		return mcp.NewToolResultError(res.Error), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", res.Data.Date)), nil
}

func (s *Server) searchEntries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entries, err := s.svc.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits := analytics.SearchEntries(entries, query)
	if len(hits) == 0 {
		return mcp.NewToolResultText("no entries found"), nil
	}
	return jsonResult(hits)
}

func (s *Server) getTrends(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	period, err := analytics.ParsePeriod(req.GetString("period", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	anchor := s.now()
	if raw := req.GetString("anchor", ""); raw != "" {
		if anchor, err = models.ParseDate(raw); err != nil {
			return mcp.NewToolResultError("anchor must be a YYYY-MM-DD date"), nil
		}
	}
	entries, err := s.svc.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(analytics.Summarize(entries, period, anchor))
}

func (s *Server) exportEntries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := s.svc.ExportData(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) getEntryFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(EntryFormatContract), nil
}

func (s *Server) readEntryFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      entryFormatURI,
			MIMEType: "text/markdown",
			Text:     EntryFormatContract,
		},
	}, nil
}
