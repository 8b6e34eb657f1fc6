package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"crms/internal/domain/request"
)

func sampleProjected() []request.ProjectedRequest {
	start := time.Date(2025, 12, 30, 9, 0, 0, 0, time.UTC)
	return []request.ProjectedRequest{
		{
			RawRequest: request.RawRequest{
				ID:             "doc-2",
				RequestNo:      "REQ-00002",
				Status:         request.StatusInProgress,
				Priority:       request.PriorityHigh,
				CreatedOn:      start,
				EstimatedStart: &start,
				ServicerID:     "tech-1",
			},
			BuildingName:    "Main Hall",
			RoomName:        "101",
			CategoryName:    "Plumbing",
			SubcategoryName: "Leak",
		},
		{
			RawRequest: request.RawRequest{
				ID:        "doc-1",
				RequestNo: "REQ-00001",
				Status:    request.StatusSubmitted,
				Priority:  request.PriorityLow,
				CreatedOn: start.Add(-24 * time.Hour),
			},
			BuildingName:    request.UnknownBuilding,
			RoomName:        request.UnknownRoom,
			CategoryName:    request.UnknownCategory,
			SubcategoryName: request.UnknownSubcategory,
		},
	}
}

func TestWriteRequestsTable(t *testing.T) {
	var out bytes.Buffer
	if err := writeRequests(&out, "table", sampleProjected()); err != nil {
		t.Fatalf("writeRequests() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "REQUEST") {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "REQ-00002") || !strings.Contains(lines[1], "Main Hall") {
		t.Fatalf("first row = %q", lines[1])
	}
	if !strings.Contains(lines[2], request.UnknownBuilding) {
		t.Fatalf("second row = %q", lines[2])
	}
}

func TestWriteRequestsYAML(t *testing.T) {
	var out bytes.Buffer
	if err := writeRequests(&out, "yaml", sampleProjected()); err != nil {
		t.Fatalf("writeRequests() error = %v", err)
	}

	var views []requestView
	if err := yaml.Unmarshal(out.Bytes(), &views); err != nil {
		t.Fatalf("unmarshal yaml: %v", err)
	}
	if len(views) != 2 || views[0].RequestNo != "REQ-00002" || views[0].Subcategory != "Leak" {
		t.Fatalf("views = %+v", views)
	}
	if views[0].EstimatedStart == "" || views[1].EstimatedStart != "" {
		t.Fatalf("estimated start = %q / %q", views[0].EstimatedStart, views[1].EstimatedStart)
	}
}

func TestWriteRequestsRejectsUnknownFormat(t *testing.T) {
	if err := writeRequests(&bytes.Buffer{}, "csv", nil); err == nil {
		t.Fatalf("writeRequests() expected error")
	}
}

func newFilterCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "list"}
	cmd.Flags().String("search", "", "")
	cmd.Flags().StringSlice("status", nil, "")
	cmd.Flags().String("from", "", "")
	cmd.Flags().String("to", "", "")
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd
}

func TestFilterFromFlags(t *testing.T) {
	cmd := newFilterCommand(t, "--search", "sink", "--status", "submitted", "--status", "onHold", "--from", "2025-12-01")

	state, err := filterFromFlags(cmd)
	if err != nil {
		t.Fatalf("filterFromFlags() error = %v", err)
	}
	if state.SearchText != "sink" {
		t.Fatalf("search = %q", state.SearchText)
	}
	if !state.Statuses.Has(request.StatusSubmitted) || !state.Statuses.Has(request.StatusOnHold) || len(state.Statuses) != 2 {
		t.Fatalf("statuses = %v", state.Statuses.Sorted())
	}
	if state.FromDate == nil || state.FromDate.Day() != 1 || state.ToDate != nil {
		t.Fatalf("dates = %v %v", state.FromDate, state.ToDate)
	}
}

func TestFilterFromFlagsRejectsInvalidInput(t *testing.T) {
	cases := [][]string{
		{"--status", "bogus"},
		{"--to", "30/12/2025"},
	}
	for _, args := range cases {
		if _, err := filterFromFlags(newFilterCommand(t, args...)); err == nil {
			t.Fatalf("filterFromFlags(%v) expected error", args)
		}
	}
}
