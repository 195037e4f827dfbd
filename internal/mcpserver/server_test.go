package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/wellbeing/internal/entryservice"
	"github.com/starford/wellbeing/internal/models"
	"github.com/starford/wellbeing/internal/testutil"
)

func testServer(t *testing.T) (*Server, *entryservice.Service) {
	t.Helper()
	svc, _ := testutil.TestService(t)
	srv := New(svc, "test")
	srv.now = func() time.Time { return time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC) }
	return srv, svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// invoked directly.
	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"list_entries":     srv.listEntries,
		"get_entry":        srv.getEntry,
		"save_entry":       srv.saveEntry,
		"delete_entry":     srv.deleteEntry,
		"search_entries":   srv.searchEntries,
		"get_trends":       srv.getTrends,
		"export_entries":   srv.exportEntries,
		"import_entries":   srv.importEntries,
		"get_entry_format": srv.getEntryFormat,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestSaveAndGetEntry(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "save_entry", map[string]any{
		"date":   "2024-01-08",
		"phase":  "clarity",
		"agency": 7.0,
		"hope":   3.0, // not a metric; ignored
	})
	if r.IsError {
		t.Fatalf("save failed: %s", resultText(r))
	}
	var saved models.Entry
	if err := json.Unmarshal([]byte(resultText(r)), &saved); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if saved.ID == 0 || saved.Metrics.Answered() != 1 {
		t.Errorf("saved = %+v", saved)
	}

	r = callTool(t, srv, "get_entry", map[string]any{"date": "2024-01-08"})
	if r.IsError || !strings.Contains(resultText(r), `"agency": 7`) {
		t.Errorf("get by date = %q", resultText(r))
	}
	r = callTool(t, srv, "get_entry", map[string]any{"id": float64(saved.ID)})
	if r.IsError {
		t.Errorf("get by id failed: %s", resultText(r))
	}
	r = callTool(t, srv, "get_entry", map[string]any{})
	if !r.IsError {
		t.Error("expected error without id or date")
	}
}

func TestSaveEntry_Rejected(t *testing.T) {
	srv, svc := testServer(t)

	r := callTool(t, srv, "save_entry", map[string]any{"date": "2024-01-08", "phase": "clarity", "agency": 10.5})
	if !r.IsError || !strings.Contains(resultText(r), "metrics.agency") {
		t.Errorf("out of range = %q", resultText(r))
	}
	r = callTool(t, srv, "save_entry", map[string]any{"date": "2024-01-08"})
	if !r.IsError {
		t.Error("expected error without phase")
	}
	if entries, _ := svc.List(context.Background()); len(entries) != 0 {
		t.Errorf("stored %d entries", len(entries))
	}
}

func TestListSearchDelete(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "save_entry", map[string]any{"date": "2024-01-08", "phase": "clarity", "agency": 7.0})
	callTool(t, srv, "save_entry", map[string]any{"date": "2024-01-09", "phase": "strength", "agency": 5.0})

	var all []models.Entry
	if err := json.Unmarshal([]byte(resultText(callTool(t, srv, "list_entries", map[string]any{}))), &all); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("list = %d entries", len(all))
	}

	r := callTool(t, srv, "list_entries", map[string]any{"phase": "ownership"})
	if resultText(r) != "no entries found" {
		t.Errorf("empty phase = %q", resultText(r))
	}

	r = callTool(t, srv, "search_entries", map[string]any{"query": "tuesday"})
	if !strings.Contains(resultText(r), "2024-01-09") || strings.Contains(resultText(r), "2024-01-08") {
		t.Errorf("search = %q", resultText(r))
	}

	r = callTool(t, srv, "delete_entry", map[string]any{"id": float64(all[0].ID)})
	if resultText(r) != "deleted: 2024-01-09" {
		t.Errorf("delete = %q", resultText(r))
	}
	r = callTool(t, srv, "delete_entry", map[string]any{"id": float64(all[0].ID)})
	if !r.IsError {
		t.Error("expected error deleting a missing entry")
	}
}

func TestGetTrends(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "save_entry", map[string]any{"date": "2024-01-01", "phase": "awareness", "agency": 6.0})
	callTool(t, srv, "save_entry", map[string]any{"date": "2024-01-08", "phase": "clarity", "agency": 8.0})

	r := callTool(t, srv, "get_trends", map[string]any{"period": "week"})
	if r.IsError {
		t.Fatalf("trends failed: %s", resultText(r))
	}
	var s struct {
		Entries int     `json:"entries"`
		Score   float64 `json:"score"`
	}
	_ = json.Unmarshal([]byte(resultText(r)), &s)
	if s.Entries != 1 || s.Score != 8 {
		t.Errorf("summary = %+v", s)
	}

	if r := callTool(t, srv, "get_trends", map[string]any{"period": "year"}); !r.IsError {
		t.Error("expected error for unknown period")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	srv, svc := testServer(t)
	callTool(t, srv, "save_entry", map[string]any{"date": "2024-01-08", "phase": "clarity", "agency": 7.0})

	exported := resultText(callTool(t, srv, "export_entries", map[string]any{}))
	if !strings.HasPrefix(exported, "[") {
		t.Fatalf("export = %q", exported)
	}

	if res := svc.ClearAll(context.Background()); !res.Success {
		t.Fatal(res.Error)
	}

	r := callTool(t, srv, "import_entries", map[string]any{"json": exported})
	if resultText(r) != "imported: 1 entries" {
		t.Fatalf("import = %q", resultText(r))
	}

	uri := "data:application/json;base64," + base64.StdEncoding.EncodeToString(
		[]byte(`[{"date":"2024-01-09","phase":"strength","metrics":{}}]`))
	r = callTool(t, srv, "import_entries", map[string]any{"source": uri})
	if resultText(r) != "imported: 1 entries" {
		t.Fatalf("data URI import = %q", resultText(r))
	}

	if entries, _ := svc.List(context.Background()); len(entries) != 2 {
		t.Errorf("entries = %d, want 2", len(entries))
	}
}

func TestImportEntries_Rejected(t *testing.T) {
	srv, _ := testServer(t)

	tests := []struct {
		name string
		args map[string]any
	}{
		{"nothing", map[string]any{}},
		{"both", map[string]any{"json": "[]", "source": "data:application/json,[]"}},
		{"not json mime", map[string]any{"source": "data:image/png;base64,iVBORw0KGgo="}},
		{"loopback", map[string]any{"source": "http://127.0.0.1/export.json"}},
		{"private 10/8", map[string]any{"source": "http://10.0.0.1/export.json"}},
		{"private 192.168/16", map[string]any{"source": "http://192.168.1.1/export.json"}},
		{"unspecified", map[string]any{"source": "http://0.0.0.0/export.json"}},
		{"file scheme", map[string]any{"source": "file:///etc/passwd"}},
		{"malformed", map[string]any{"json": `[{"date":`}},
	}
	for _, tt := range tests {
		if r := callTool(t, srv, "import_entries", tt.args); !r.IsError {
			t.Errorf("%s: expected error, got %q", tt.name, resultText(r))
		}
	}
}

func TestCheckBlockedHost(t *testing.T) {
	tests := []struct {
		host    string
		blocked bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"localhost", true},
		{"0.0.0.0", true},
		{"10.0.0.1", true},
		{"172.16.5.4", true},
		{"192.168.1.1", true},
		{"fd00::1", true},
		{"169.254.169.254", true},
		{"169.254.10.1", true},
		{"fe80::1", true},
		{"metadata.google.internal", true},
		{"93.184.216.34", false},
		{"2606:4700::1111", false},
	}
	for _, tt := range tests {
		err := checkBlockedHost(tt.host)
		if got := err != nil; got != tt.blocked {
			t.Errorf("checkBlockedHost(%q) blocked = %v, want %v (err %v)", tt.host, got, tt.blocked, err)
		}
	}
}

func TestDecodeDataURI_PlainText(t *testing.T) {
	data, err := decodeDataURI("data:application/json,%5B%5D")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Errorf("data = %q", data)
	}
}

func TestEntryFormat(t *testing.T) {
	srv, _ := testServer(t)
	text := resultText(callTool(t, srv, "get_entry_format", map[string]any{}))
	for _, want := range []string{"YYYY-MM-DD", "ownership", "0 to 10", "boundaryIntegrity"} {
		if !strings.Contains(text, want) {
			t.Errorf("format contract missing %q", want)
		}
	}

	contents, err := srv.readEntryFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != entryFormatURI {
		t.Errorf("resource = %+v", contents[0])
	}
}
