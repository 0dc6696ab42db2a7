package filter

import (
	"testing"

	"github.com/pfrederiksen/shuttle-schedule/internal/schedule"
)

func TestFilter_IsEmpty(t *testing.T) {
	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{
			name:   "empty filter",
			filter: NewFilter(),
			want:   true,
		},
		{
			name:   "whitespace only",
			filter: &Filter{From: "  ", Query: "\t"},
			want:   true,
		},
		{
			name:   "filter with from",
			filter: &Filter{From: "гараж"},
			want:   false,
		},
		{
			name:   "filter with window",
			filter: &Filter{Window: &TimeWindow{Start: 420, End: 540}},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.IsEmpty(); got != tt.want {
				t.Errorf("Filter.IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_Matches(t *testing.T) {
	record := schedule.NewRecord("08:15", []string{"101", "204"}, "Гараж → Цех 3 - Столовая", "через КПП-2")

	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{
			name:   "empty filter matches all",
			filter: NewFilter(),
			want:   true,
		},
		{
			name:   "from matches first stop",
			filter: &Filter{From: "Гараж"},
			want:   true,
		},
		{
			name:   "from is case-insensitive",
			filter: &Filter{From: "ГАРАЖ"},
			want:   true,
		},
		{
			name:   "from matches no stop",
			filter: &Filter{From: "склад"},
			want:   false,
		},
		{
			name:   "to after from",
			filter: &Filter{From: "гараж", To: "столовая"},
			want:   true,
		},
		{
			name:   "to before from",
			filter: &Filter{From: "столовая", To: "гараж"},
			want:   false,
		},
		{
			name:   "to equals from stop",
			filter: &Filter{From: "цех", To: "цех"},
			want:   false,
		},
		{
			name:   "to alone",
			filter: &Filter{To: "цех 3"},
			want:   true,
		},
		{
			name:   "to matches no stop",
			filter: &Filter{To: "проходная"},
			want:   false,
		},
		{
			name:   "query matches bus number",
			filter: &Filter{Query: "204"},
			want:   true,
		},
		{
			name:   "query matches description",
			filter: &Filter{Query: "кпп"},
			want:   true,
		},
		{
			name:   "query misses",
			filter: &Filter{Query: "999"},
			want:   false,
		},
		{
			name:   "window contains departure",
			filter: &Filter{Window: &TimeWindow{Start: 8 * 60, End: 8*60 + 30}},
			want:   true,
		},
		{
			name:   "window excludes departure",
			filter: &Filter{Window: &TimeWindow{Start: 9 * 60, End: 10 * 60}},
			want:   false,
		},
		{
			name:   "all criteria must hold",
			filter: &Filter{From: "гараж", To: "цех", Query: "999"},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(record); got != tt.want {
				t.Errorf("Filter.Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_MatchesWithoutKeywords(t *testing.T) {
	// Records built by hand may lack a search index
	r := &schedule.Record{Time: "07:40", Buses: []string{"12"}, Route: "Склад - Офис"}

	f := &Filter{Query: "склад"}
	if !f.Matches(r) {
		t.Error("query should fall back to a derived search index")
	}
}

func TestFilter_Apply(t *testing.T) {
	records := []*schedule.Record{
		schedule.NewRecord("07:10", []string{"101"}, "Гараж → Цех 3", ""),
		schedule.NewRecord("08:15", []string{"204"}, "Цех 3 → Гараж", ""),
		schedule.NewRecord("09:40", nil, "Склад - Столовая", ""),
	}

	empty := NewFilter()
	if got := empty.Apply(records); len(got) != 3 {
		t.Errorf("empty filter returned %d records, want 3", len(got))
	}

	f := &Filter{From: "гараж", To: "цех"}
	got := f.Apply(records)
	if len(got) != 1 || got[0].Time != "07:10" {
		t.Errorf("Apply() = %+v, want only the 07:10 departure", got)
	}

	none := &Filter{Query: "нет такого"}
	if got := none.Apply(records); got == nil || len(got) != 0 {
		t.Errorf("Apply() with no matches = %v, want empty non-nil slice", got)
	}
}

func TestFilter_String(t *testing.T) {
	tests := []struct {
		name   string
		filter *Filter
		want   string
	}{
		{
			name:   "empty",
			filter: NewFilter(),
			want:   "No active filters",
		},
		{
			name:   "route",
			filter: &Filter{From: "гараж", To: "цех"},
			want:   "From: гараж | To: цех",
		},
		{
			name:   "query and window",
			filter: &Filter{Query: "101", Window: &TimeWindow{Start: 420, End: 570}},
			want:   "Query: 101 | Between: 07:00-09:30",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.String(); got != tt.want {
				t.Errorf("Filter.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFilter_Clone(t *testing.T) {
	original := &Filter{From: "гараж", Window: &TimeWindow{Start: 60, End: 120}}
	clone := original.Clone()

	clone.From = "склад"
	clone.Window.End = 600

	if original.From != "гараж" {
		t.Error("modifying clone changed original From")
	}
	if original.Window.End != 120 {
		t.Error("modifying clone changed original Window")
	}
}
