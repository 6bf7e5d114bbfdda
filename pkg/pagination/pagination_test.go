package pagination

import "testing"

func TestNew_Clamps(t *testing.T) {
	tests := []struct {
		name        string
		page        int
		perPage     int
		wantPage    int
		wantPerPage int
	}{
		{"zero values", 0, 0, 1, DefaultPerPage},
		{"negative page", -3, 10, 1, 10},
		{"per page over max", 2, 500, 2, MaxPerPage},
		{"in range", 3, 50, 3, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.page, tt.perPage)
			if p.Page != tt.wantPage || p.PerPage != tt.wantPerPage {
				t.Errorf("New(%d, %d) = %+v, want page=%d perPage=%d",
					tt.page, tt.perPage, p, tt.wantPage, tt.wantPerPage)
			}
		})
	}
}

func TestPagination_OffsetLimit(t *testing.T) {
	p := New(3, 20)
	if p.Offset() != 40 {
		t.Errorf("Offset() = %d, want 40", p.Offset())
	}
	if p.Limit() != 20 {
		t.Errorf("Limit() = %d, want 20", p.Limit())
	}
}

func TestSortOption_Parse(t *testing.T) {
	allowed := map[string]string{
		"severity":      "severity_rank",
		"discovered_at": "discovered_at",
	}

	tests := []struct {
		name string
		expr string
		want string
	}{
		{"ascending", "discovered_at", "discovered_at ASC"},
		{"descending", "-severity", "severity_rank DESC"},
		{"explicit plus", "+severity", "severity_rank ASC"},
		{"multiple fields", "-severity,discovered_at", "severity_rank DESC, discovered_at ASC"},
		{"unknown field dropped", "hostname,discovered_at", "discovered_at ASC"},
		{"all unknown falls back", "password,id", "created_at DESC"},
		{"empty falls back", "", "created_at DESC"},
		{"bare dash falls back", "-", "created_at DESC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := NewSortOption(allowed).Parse(tt.expr)
			got := opt.SQLWithDefault("created_at DESC")
			if got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.expr, got, tt.want)
			}
		})
	}
}
