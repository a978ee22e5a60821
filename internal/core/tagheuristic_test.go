package core

import (
	"reflect"
	"testing"
)

func TestFindTagsToPatch(t *testing.T) {
	cases := []struct {
		name    string
		current string
		tags    []string
		want    []string
	}{
		{
			name:    "three component decrement",
			current: "IL40.2.19",
			tags:    []string{"IL40.0.0", "IL40.0.1", "IL40.1.0", "IL40.2.17", "IL40.2.18"},
			want:    []string{"IL40.2.18", "IL40.1.0"},
		},
		{
			name:    "empty tags",
			current: "IL40.2.19",
			tags:    nil,
			want:    nil,
		},
		{
			name:    "no numeric overlap",
			current: "v2.0.0",
			tags:    []string{"garbage", "v1.5-1.beta.1"},
			want:    nil,
		},
		{
			name:    "non-numeric trailing token in a candidate tag",
			current: "IL40.2.19",
			tags:    []string{"IL40.0.0", "IL40.0.1", "IL40.1.x", "IL40.2.17", "IL40.2.18"},
			want:    []string{"IL40.2.18", "IL40.1.x"},
		},
		{
			name:    "candidates given out of numeric order",
			current: "IL40.2.19",
			tags:    []string{"IL40.0.1", "IL40.1.0", "IL40.2.17", "IL40.2.18", "IL40.x.0"},
			want:    []string{"IL40.2.18", "IL40.1.0"},
		},
		{
			name:    "fuzzy dash-separated current matches dotted tags",
			current: "il40-2-19",
			tags:    []string{"IL40.0.1", "IL40.1.0", "IL40.2.17", "IL40.2.18", "IL40.x.0"},
			want:    []string{"IL40.2.18", "IL40.1.0"},
		},
		{
			name:    "double-digit numeric run sorts after single-digit",
			current: "il60-1-0",
			tags:    []string{"il60-0-8", "il60-0-9", "il60-0-10", "il60-0-11"},
			want:    []string{"il60-0-11"},
		},
		{
			name:    "same tags given unsorted",
			current: "il60-1-0",
			tags:    []string{"il60-0-11", "il60-0-8", "il60-0-10", "il60-0-9"},
			want:    []string{"il60-0-11"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FindTagsToPatch(tc.current, tc.tags)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("FindTagsToPatch(%q, %v) = %v, want %v", tc.current, tc.tags, got, tc.want)
			}
		})
	}
}

// Scenario 6: auto-patch with a shared prefix. The heuristic itself only
// ever sees bare tags; the prefix is a concern of the caller (the CLI's
// auto-patch command passes the bare current version and tags to
// FindTagsToPatch and prepends the prefix when naming Versions), so this
// exercises that same flow down to the resulting patch storage path.
func TestFindTagsToPatchWithPrefixEndToEnd(t *testing.T) {
	const prefix = "wtf-"
	current := "0.1.1"
	tags := []string{"0.1.0", "0.1.1"}

	candidates := FindTagsToPatch(current, tags)
	if !reflect.DeepEqual(candidates, []string{"0.1.0"}) {
		t.Fatalf("FindTagsToPatch(%q, %v) = %v, want [0.1.0]", current, tags, candidates)
	}

	to := MustParseVersion(prefix + current)
	from := MustParseVersion(prefix + candidates[0])

	got := PatchStoragePath(from, to)
	want := "wtf-0.1.0---wtf-0.1.1.patch.zst"
	if got != want {
		t.Errorf("PatchStoragePath(%s, %s) = %q, want %q", from, to, got, want)
	}
}

func TestHumanSortLess(t *testing.T) {
	if !humanSortLess("il60-0-9", "il60-0-10") {
		t.Error("expected il60-0-9 < il60-0-10 under human-numeric comparison")
	}
	if humanSortLess("il60-0-10", "il60-0-9") {
		t.Error("expected il60-0-10 not< il60-0-9")
	}
}
