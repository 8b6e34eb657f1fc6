package requests

import (
	"reflect"
	"testing"
	"time"

	"crms/internal/domain/request"
)

func TestRebuildResolvesNamesAndSentinels(t *testing.T) {
	resolver := TableResolver{
		request.LookupBuilding: {"b1": "Main Hall"},
		request.LookupRoom:     {"r1": "101"},
		request.LookupCategory: {"c1": "Plumbing", "c1-leak": "Leak"},
	}
	raw := []request.RawRequest{
		{ID: "1", RequestNo: "REQ-00001", BuildingID: "b1", RoomID: "r1", CategoryID: "c1", SubcategoryID: "c1-leak"},
		{ID: "2", RequestNo: "REQ-00002", BuildingID: "gone", RoomID: "gone", CategoryID: "gone"},
	}

	out := Rebuild(raw, resolver)
	if len(out) != 2 {
		t.Fatalf("Rebuild() len = %d", len(out))
	}
	first := out[0]
	if first.BuildingName != "Main Hall" || first.RoomName != "101" || first.CategoryName != "Plumbing" || first.SubcategoryName != "Leak" {
		t.Fatalf("first = %+v", first)
	}
	second := out[1]
	if second.BuildingName != request.UnknownBuilding ||
		second.RoomName != request.UnknownRoom ||
		second.CategoryName != request.UnknownCategory ||
		second.SubcategoryName != request.UnknownSubcategory {
		t.Fatalf("second = %+v", second)
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	start := time.Date(2025, 12, 30, 9, 0, 0, 0, time.UTC)
	resolver := TableResolver{request.LookupBuilding: {"b1": "Main Hall"}}
	raw := []request.RawRequest{
		{ID: "1", RequestNo: "REQ-00001", BuildingID: "b1", EstimatedStart: &start},
		{ID: "2", RequestNo: "REQ-00002", BuildingID: "b2"},
	}

	first := Rebuild(raw, resolver)
	second := Rebuild(raw, resolver)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Rebuild() not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestRebuildEmpty(t *testing.T) {
	if out := Rebuild(nil, TableResolver{}); out == nil || len(out) != 0 {
		t.Fatalf("Rebuild(nil) = %#v, want empty non-nil slice", out)
	}
}
