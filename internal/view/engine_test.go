package view

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/pitabwire/formbridge/model"
)

func subscriberDef() model.EntityDefinition {
	return model.EntityDefinition{
		Entity: "subscribers",
		Fields: []model.FieldSpec{
			{Key: "name", Kind: model.KindText, Searchable: true},
			{Key: "mobile", Kind: model.KindText, Searchable: true},
			{Key: "status", Kind: model.KindOption, Lookup: "statuses", Searchable: true},
			{Key: "amount", Kind: model.KindNumber},
			{Key: "joined_on", Kind: model.KindDate},
		},
		View: model.ViewSpec{
			Columns: []model.ColumnSpec{
				{Field: "name", Label: "Name", Sortable: true},
				{Field: "mobile", Label: "Mobile"},
				{Field: "status", Label: "Status", Sortable: true},
			},
			Filters: []model.FilterSpec{{Field: "status", Label: "Status", Lookup: "statuses"}},
			Special: []model.SpecialFilter{
				{Name: "today", Kind: model.SpecialCreatedToday, Field: "created_at"},
				{Name: "dup_mobile", Kind: model.SpecialDuplicateKey, Field: "mobile"},
			},
			PageSize: 10,
		},
	}
}

func statusRef() model.ReferenceData {
	return model.ReferenceData{
		"statuses": {
			{Label: "Active", Value: "1"},
			{Label: "Inactive", Value: "0"},
		},
	}
}

func makeRecords(n int) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, map[string]any{
			"id":     float64(i + 1),
			"name":   fmt.Sprintf("Person %02d", i+1),
			"mobile": fmt.Sprintf("98765000%02d", i+1),
			"status": "1",
		})
	}
	return out
}

func TestProject_pagination(t *testing.T) {
	e := New(subscriberDef())
	records := makeRecords(25)

	v := e.Project(records, nil, Criteria{Page: model.PageSpec{Index: 3, Size: 10}})

	if v.Total != 25 {
		t.Fatalf("total = %d, want 25", v.Total)
	}
	if len(v.PageData) != 5 {
		t.Fatalf("page 3 of 25 with size 10: got %d rows, want 5", len(v.PageData))
	}
	if got := v.PageData[0]["name"]; got != "Person 21" {
		t.Errorf("first row on page 3 = %v, want Person 21", got)
	}
}

func TestProject_outOfRangePageIsEmpty(t *testing.T) {
	e := New(subscriberDef())
	records := makeRecords(25)

	v := e.Project(records, nil, Criteria{Page: model.PageSpec{Index: 4, Size: 10}})

	if v.PageData == nil {
		t.Fatal("out-of-range page should be an empty slice, not nil")
	}
	if len(v.PageData) != 0 {
		t.Fatalf("page 4 of 25 with size 10: got %d rows, want 0", len(v.PageData))
	}
	if v.Total != 25 {
		t.Errorf("total = %d, want 25 regardless of page", v.Total)
	}
}

func TestProject_membershipFilter(t *testing.T) {
	e := New(subscriberDef())
	records := makeRecords(10)
	for i := 0; i < 4; i++ {
		records[i]["status"] = "0"
	}

	v := e.Project(records, statusRef(), Criteria{
		Filters: map[string][]string{"status": {"0"}},
		Page:    model.PageSpec{Index: 1, Size: 10},
	})

	if v.Total != 4 {
		t.Fatalf("total = %d, want 4", v.Total)
	}
	for _, r := range v.PageData {
		if r["status"] != "0" {
			t.Errorf("filtered row has status %v", r["status"])
		}
	}
}

func TestProject_emptyFilterSetMeansNoConstraint(t *testing.T) {
	e := New(subscriberDef())
	records := makeRecords(10)

	v := e.Project(records, nil, Criteria{
		Filters: map[string][]string{"status": {}},
		Page:    model.PageSpec{Index: 1, Size: 10},
	})

	if v.Total != 10 {
		t.Fatalf("empty filter set restricted results: total = %d, want 10", v.Total)
	}
}

func TestProject_addingFilterValueNeverShrinksResults(t *testing.T) {
	e := New(subscriberDef())
	records := makeRecords(10)
	for i := 0; i < 4; i++ {
		records[i]["status"] = "0"
	}

	narrow := e.Project(records, nil, Criteria{
		Filters: map[string][]string{"status": {"0"}},
	})
	wide := e.Project(records, nil, Criteria{
		Filters: map[string][]string{"status": {"0", "1"}},
	})

	if wide.Total < narrow.Total {
		t.Fatalf("widening a filter shrank results: %d < %d", wide.Total, narrow.Total)
	}
	if wide.Total != 10 {
		t.Errorf("selecting every value should match all: total = %d", wide.Total)
	}
}

func TestProject_queryMatchesResolvedLabel(t *testing.T) {
	e := New(subscriberDef())
	records := makeRecords(5)
	records[2]["status"] = "0"

	v := e.Project(records, statusRef(), Criteria{Query: "inactive"})

	if v.Total != 1 {
		t.Fatalf("query on option label: total = %d, want 1", v.Total)
	}
	if v.PageData[0]["name"] != "Person 03" {
		t.Errorf("matched wrong record: %v", v.PageData[0]["name"])
	}
}

func TestProject_queryCaseInsensitiveOverFields(t *testing.T) {
	e := New(subscriberDef())
	records := makeRecords(5)

	v := e.Project(records, statusRef(), Criteria{Query: "PERSON 04"})

	if v.Total != 1 {
		t.Fatalf("total = %d, want 1", v.Total)
	}
}

func TestProject_sortNumericField(t *testing.T) {
	e := New(subscriberDef())
	records := []map[string]any{
		{"name": "a", "amount": float64(300)},
		{"name": "b", "amount": float64(25)},
		{"name": "c", "amount": "9"},
	}

	v := e.Project(records, nil, Criteria{Sort: model.SortSpec{Field: "amount", Dir: "asc"}})

	var got []string
	for _, r := range v.All {
		got = append(got, r["name"].(string))
	}
	want := []string{"c", "b", "a"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("numeric sort order = %v, want %v", got, want)
	}
}

func TestProject_sortDescending(t *testing.T) {
	e := New(subscriberDef())
	records := []map[string]any{
		{"name": "beta"},
		{"name": "Alpha"},
		{"name": "gamma"},
	}

	v := e.Project(records, nil, Criteria{Sort: model.SortSpec{Field: "name", Dir: "desc"}})

	if v.All[0]["name"] != "gamma" || v.All[2]["name"] != "Alpha" {
		t.Fatalf("descending case-insensitive sort got %v", v.All)
	}
}

func TestProject_sortOptionFieldByLabel(t *testing.T) {
	e := New(subscriberDef())
	// Value "1" resolves to "Active", "0" to "Inactive"; label order is
	// the reverse of value order.
	records := []map[string]any{
		{"name": "x", "status": "0"},
		{"name": "y", "status": "1"},
	}

	v := e.Project(records, statusRef(), Criteria{Sort: model.SortSpec{Field: "status", Dir: "asc"}})

	if v.All[0]["status"] != "1" {
		t.Fatalf("option sort should order by label, got first status %v", v.All[0]["status"])
	}
}

func TestProject_duplicateKeySpansFullSet(t *testing.T) {
	e := New(subscriberDef())
	records := makeRecords(25)
	records[2]["mobile"] = "1111111111"
	records[22]["mobile"] = "1111111111"

	v := e.Project(records, nil, Criteria{
		Special: []string{"dup_mobile"},
		Page:    model.PageSpec{Index: 1, Size: 10},
	})

	if v.Total != 2 {
		t.Fatalf("duplicate filter total = %d, want 2", v.Total)
	}
}

func TestProject_createdToday(t *testing.T) {
	e := New(subscriberDef())
	today := time.Now().UTC().Format("2006-01-02")
	records := []map[string]any{
		{"name": "old", "created_at": "2020-01-15T09:00:00Z"},
		{"name": "new", "created_at": today + "T08:30:00Z"},
	}

	v := e.Project(records, nil, Criteria{Special: []string{"today"}})

	if v.Total != 1 || v.All[0]["name"] != "new" {
		t.Fatalf("created_today kept %d records: %v", v.Total, v.All)
	}
}

func TestProject_doesNotMutateInput(t *testing.T) {
	e := New(subscriberDef())
	records := []map[string]any{
		{"name": "charlie"},
		{"name": "alpha"},
		{"name": "bravo"},
	}

	e.Project(records, nil, Criteria{Sort: model.SortSpec{Field: "name", Dir: "asc"}})

	if records[0]["name"] != "charlie" {
		t.Fatalf("input slice reordered: %v", records)
	}
}

func TestProject_pipelineOrderFilterBeforePaginate(t *testing.T) {
	e := New(subscriberDef())
	records := makeRecords(30)
	for i := 0; i < 15; i++ {
		records[i]["status"] = "0"
	}

	v := e.Project(records, nil, Criteria{
		Filters: map[string][]string{"status": {"0"}},
		Page:    model.PageSpec{Index: 2, Size: 10},
	})

	if v.Total != 15 {
		t.Fatalf("total = %d, want 15 matches before paging", v.Total)
	}
	if len(v.PageData) != 5 {
		t.Fatalf("page 2 of 15 filtered rows: got %d, want 5", len(v.PageData))
	}
}
