package domain

import (
	"testing"
	"time"
)

func TestParseListFilter_Defaults(t *testing.T) {
	f, errs := ParseListFilter("", "", "", "")
	if errs != nil {
		t.Fatalf("errs = %v", errs)
	}
	if f.Page != 1 || f.PageSize != 20 || f.Status != "" || f.Day != nil {
		t.Errorf("filter = %+v", f)
	}
	if f.Offset() != 0 {
		t.Errorf("Offset = %d", f.Offset())
	}
}

func TestParseListFilter_Values(t *testing.T) {
	f, errs := ParseListFilter("confirmed", "2026-04-01", "3", "50")
	if errs != nil {
		t.Fatalf("errs = %v", errs)
	}
	if f.Status != StatusConfirmed || f.Page != 3 || f.PageSize != 50 {
		t.Errorf("filter = %+v", f)
	}
	if f.Day == nil || !f.Day.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Day = %v", f.Day)
	}
	if f.Offset() != 100 {
		t.Errorf("Offset = %d, want 100", f.Offset())
	}

	all, _ := ParseListFilter("ALL", "", "", "")
	if all.Status != "" {
		t.Errorf("ALL should mean no status filter, got %q", all.Status)
	}
}

func TestParseListFilter_Invalid(t *testing.T) {
	tests := []struct {
		name                         string
		status, date, page, pageSize string
		field                        string
	}{
		{"status", "DONE", "", "", "", "status"},
		{"date", "", "01/04/2026", "", "", "date"},
		{"page zero", "", "", "0", "", "page"},
		{"page text", "", "", "x", "", "page"},
		{"page size too big", "", "", "", "101", "pageSize"},
		{"page size zero", "", "", "", "0", "pageSize"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := ParseListFilter(tt.status, tt.date, tt.page, tt.pageSize)
			if _, ok := errs[tt.field]; !ok {
				t.Errorf("errs = %v, want key %q", errs, tt.field)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	if d, ok := ParseDate("2026-04-01"); !ok || d.Day() != 1 {
		t.Errorf("ParseDate day = %v %v", d, ok)
	}
	if _, ok := ParseDate("2026-04-01T09:30:00+01:00"); !ok {
		t.Error("RFC3339 should parse")
	}
	if _, ok := ParseDate("next tuesday"); ok {
		t.Error("free text should not parse")
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := ParseStatus(" in_progress "); !ok || s != StatusInProgress {
		t.Errorf("ParseStatus = %q %v", s, ok)
	}
	if _, ok := ParseStatus("archived"); ok {
		t.Error("unknown status should not parse")
	}
}
