package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/linkpage/internal/linkservice"
	"github.com/starford/linkpage/internal/models"
	"github.com/starford/linkpage/internal/testutil"
)

func testServer(t *testing.T) (*Server, *linkservice.Service) {
	t.Helper()
	svc := linkservice.NewService(testutil.TestDB(t))
	return New(svc, models.Actor{ID: "alice"}), svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are invoked
	// directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_links":
		result, err = srv.listLinks(ctx, req)
	case "create_link":
		result, err = srv.createLink(ctx, req)
	case "update_link":
		result, err = srv.updateLink(ctx, req)
	case "delete_link":
		result, err = srv.deleteLink(ctx, req)
	case "reorder_links":
		result, err = srv.reorderLinks(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

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

func createLink(t *testing.T, srv *Server, title string) models.Link {
	t.Helper()
	r := callTool(t, srv, "create_link", map[string]interface{}{
		"attributes": map[string]interface{}{"title": title},
	})
	if r.IsError {
		t.Fatalf("create_link: %s", resultText(r))
	}
	var l models.Link
	if err := json.Unmarshal([]byte(resultText(r)), &l); err != nil {
		t.Fatalf("decode link: %v", err)
	}
	return l
}

func TestCreateAndListLinks(t *testing.T) {
	srv, _ := testServer(t)

	a := createLink(t, srv, "a")
	b := createLink(t, srv, "b")
	if a.Order != 1 || b.Order != 2 {
		t.Errorf("orders = %d, %d, want 1, 2", a.Order, b.Order)
	}

	r := callTool(t, srv, "list_links", map[string]interface{}{})
	var links []models.Link
	if err := json.Unmarshal([]byte(resultText(r)), &links); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(links) != 2 || links[0].ID != a.ID || links[1].ID != b.ID {
		t.Errorf("list = %+v", links)
	}
}

func TestCreateLink_AttributesAsString(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "create_link", map[string]interface{}{"attributes": `{"title":"x"}`})
	if r.IsError {
		t.Fatalf("create_link: %s", resultText(r))
	}
}

func TestCreateLink_Invalid(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_link", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing attributes")
	}
	r = callTool(t, srv, "create_link", map[string]interface{}{"attributes": []interface{}{1, 2}})
	if !r.IsError {
		t.Error("expected error for non-object attributes")
	}
}

func TestUpdateLink(t *testing.T) {
	srv, _ := testServer(t)
	l := createLink(t, srv, "old")

	r := callTool(t, srv, "update_link", map[string]interface{}{
		"id":         l.ID,
		"attributes": map[string]interface{}{"title": "new"},
	})
	if r.IsError {
		t.Fatalf("update_link: %s", resultText(r))
	}
	var got models.Link
	_ = json.Unmarshal([]byte(resultText(r)), &got)
	var attrs map[string]string
	_ = json.Unmarshal(got.Attributes, &attrs)
	if attrs["title"] != "new" {
		t.Errorf("attributes = %s", got.Attributes)
	}

	r = callTool(t, srv, "update_link", map[string]interface{}{
		"id":         "missing",
		"attributes": map[string]interface{}{},
	})
	if !r.IsError {
		t.Error("expected error for missing link")
	}
}

func TestDeleteLink(t *testing.T) {
	srv, svc := testServer(t)
	a := createLink(t, srv, "a")
	b := createLink(t, srv, "b")

	r := callTool(t, srv, "delete_link", map[string]interface{}{"id": a.ID})
	if text := resultText(r); text != "deleted: "+a.ID {
		t.Errorf("delete result = %q", text)
	}

	links, err := svc.List(context.Background(), models.Actor{ID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 || links[0].ID != b.ID || links[0].Order != 1 {
		t.Errorf("after delete = %+v", links)
	}
}

func TestReorderLinks(t *testing.T) {
	srv, _ := testServer(t)
	a := createLink(t, srv, "a")
	b := createLink(t, srv, "b")

	r := callTool(t, srv, "reorder_links", map[string]interface{}{
		"ids": []interface{}{b.ID, a.ID},
	})
	if r.IsError {
		t.Fatalf("reorder_links: %s", resultText(r))
	}
	var links []models.Link
	_ = json.Unmarshal([]byte(resultText(r)), &links)
	if len(links) != 2 || links[0].ID != b.ID || links[0].Order != 1 {
		t.Errorf("reordered = %+v", links)
	}

	r = callTool(t, srv, "reorder_links", map[string]interface{}{"ids": []interface{}{a.ID}})
	if !r.IsError {
		t.Error("expected error for partial reorder")
	}
}

func TestForeignLinkRejected(t *testing.T) {
	srv, svc := testServer(t)
	bobs, err := svc.Create(context.Background(), models.Actor{ID: "bob"}, json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "delete_link", map[string]interface{}{"id": bobs.ID})
	if !r.IsError {
		t.Error("expected error deleting another actor's link")
	}
}
