package bitable

import (
	"context"
	"fmt"
	"testing"
)

// tagged reports whether req is the tag-match query (as opposed to the
// recency query, which carries a sort and no filter).
func tagged(req searchRequest) bool {
	return req.Filter != nil
}

func TestRecommended_ZeroLimit(t *testing.T) {
	f := newFake(t)
	records, err := f.client().Recommended(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recommended: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
	if len(f.searches) != 0 {
		t.Error("zero limit still queried the backend")
	}
}

func TestRecommended_RecencyFallback(t *testing.T) {
	f := newFake(t)
	f.noTagField = true // empty vocabulary
	f.searchFn = func(req searchRequest) searchResponse {
		if tagged(req) {
			t.Error("tag query sent despite empty vocabulary")
		}
		if len(req.Sort) != 1 || req.Sort[0].FieldName != fieldCreatedTime || !req.Sort[0].Desc {
			t.Errorf("sort = %+v, want created-time descending", req.Sort)
		}
		if req.PageSize != 4 {
			t.Errorf("page_size = %d, want limit", req.PageSize)
		}
		return searchResult(
			rec("r1", "newest", "http://1"),
			rec("r2", "newer", "http://2"),
			rec("r3", "new", "http://3"),
		)
	}

	records, err := f.client().Recommended(context.Background(), 4)
	if err != nil {
		t.Fatalf("Recommended: %v", err)
	}
	// Fallback returns the most recent records verbatim, in order.
	want := []string{"r1", "r2", "r3"}
	if len(records) != len(want) {
		t.Fatalf("got %d records, want %d", len(records), len(want))
	}
	for i, id := range want {
		if records[i].ID != id {
			t.Errorf("records[%d].ID = %q, want %q", i, records[i].ID, id)
		}
	}
}

func TestRecommended_TagQueryShape(t *testing.T) {
	f := newFake(t)
	f.tagField = []string{"go", "rust", "zig", "c"}
	f.searchFn = func(req searchRequest) searchResponse {
		if !tagged(req) {
			return searchResult()
		}
		if req.Filter.Conjunction != "or" {
			t.Errorf("conjunction = %q, want or", req.Filter.Conjunction)
		}
		if n := len(req.Filter.Conditions); n < 1 || n > 3 {
			t.Errorf("got %d tag conditions, want 1..3", n)
		}
		for _, cond := range req.Filter.Conditions {
			if cond.FieldName != fieldTags || cond.Operator != "contains" {
				t.Errorf("condition = %+v", cond)
			}
		}
		if req.PageSize != 100 {
			t.Errorf("page_size = %d, want 100", req.PageSize)
		}
		return searchResult()
	}

	if _, err := f.client().Recommended(context.Background(), 5); err != nil {
		t.Fatalf("Recommended: %v", err)
	}
}

func TestRecommended_TruncatesAboveLimit(t *testing.T) {
	f := newFake(t)
	f.tagField = []string{"go"}
	f.searchFn = func(req searchRequest) searchResponse {
		if !tagged(req) {
			t.Error("recency query sent although the tag query overfilled")
			return searchResult()
		}
		items := make([]recordItem, 20)
		for i := range items {
			items[i] = rec(fmt.Sprintf("r%d", i), "t", "http://x")
		}
		return searchResult(items...)
	}

	records, err := f.client().Recommended(context.Background(), 7)
	if err != nil {
		t.Fatalf("Recommended: %v", err)
	}
	if len(records) != 7 {
		t.Fatalf("got %d records, want exactly limit", len(records))
	}
	seen := make(map[string]bool)
	for _, r := range records {
		if seen[r.ID] {
			t.Errorf("duplicate record %q", r.ID)
		}
		seen[r.ID] = true
	}
}

func TestRecommended_BackfillsWithRecent(t *testing.T) {
	f := newFake(t)
	f.tagField = []string{"go", "rust"}
	f.searchFn = func(req searchRequest) searchResponse {
		if tagged(req) {
			return searchResult(
				rec("t1", "a", "http://1"),
				rec("t2", "b", "http://2"),
				rec("t3", "c", "http://3"),
				rec("t4", "d", "http://4"),
				rec("t5", "e", "http://5"),
			)
		}
		if req.PageSize != 7 {
			t.Errorf("backfill page_size = %d, want limit minus matched", req.PageSize)
		}
		// Two of the recent records duplicate tag matches.
		return searchResult(
			rec("t1", "a", "http://1"),
			rec("n1", "f", "http://6"),
			rec("t3", "c", "http://3"),
			rec("n2", "g", "http://7"),
			rec("n3", "h", "http://8"),
		)
	}

	records, err := f.client().Recommended(context.Background(), 12)
	if err != nil {
		t.Fatalf("Recommended: %v", err)
	}
	if len(records) > 12 {
		t.Fatalf("got %d records, want at most limit", len(records))
	}
	if len(records) != 8 {
		t.Errorf("got %d records, want 5 matched + 3 new recent", len(records))
	}
	seen := make(map[string]bool)
	for _, r := range records {
		if seen[r.ID] {
			t.Errorf("duplicate record %q after backfill", r.ID)
		}
		seen[r.ID] = true
	}
}

func TestPickRandom(t *testing.T) {
	tags := []string{"a", "b", "c", "d"}
	for count := 1; count <= 6; count++ {
		got := pickRandom(tags, count)
		wantLen := count
		if wantLen > len(tags) {
			wantLen = len(tags)
		}
		if len(got) != wantLen {
			t.Errorf("pickRandom(count=%d) returned %d items, want %d", count, len(got), wantLen)
		}
		seen := make(map[string]bool)
		for _, tag := range got {
			if seen[tag] {
				t.Errorf("pickRandom returned %q twice", tag)
			}
			seen[tag] = true
		}
	}
	// Source slice must stay intact.
	if tags[0] != "a" || tags[3] != "d" {
		t.Error("pickRandom mutated its input")
	}
}
