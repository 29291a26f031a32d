package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/rbaliyan/chips/store"
)

func testContacts() []*store.Contact {
	return []*store.Contact{
		{ID: 2, DisplayName: "John Smith", Destinations: []string{"john@example.com", "+15551234567"}},
		{ID: 1, DisplayName: "Jane Doe", Destinations: []string{"jane@example.com"}},
		{ID: 3, DisplayName: "Johnny Appleseed", Destinations: []string{"JOHN@example.com"}},
		nil,
	}
}

func TestStaticSearch(t *testing.T) {
	r := NewStatic(testContacts())
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		limit int
		want  []int64
	}{
		{"name prefix", "jo", 0, []int64{2, 3}},
		{"second word", "doe", 0, []int64{1}},
		{"destination", "+1555", 0, []int64{2}},
		{"limit", "j", 2, []int64{1, 2}},
		{"no match", "zed", 0, nil},
		{"empty", "", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Search(ctx, tt.query, tt.limit)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d results, got %d", len(tt.want), len(got))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("result %d: expected id %d, got %d", i, id, got[i].ID)
				}
			}
		})
	}
}

func TestStaticLookup(t *testing.T) {
	r := NewStatic(testContacts())
	ctx := context.Background()

	c, err := r.Lookup(ctx, " John@Example.com ")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if c.ID != 2 {
		t.Errorf("expected first owner to win, got id %d", c.ID)
	}

	c.DisplayName = "mutated"
	again, _ := r.Lookup(ctx, "john@example.com")
	if again.DisplayName != "John Smith" {
		t.Error("lookup must return a copy")
	}

	if _, err := r.Lookup(ctx, "nobody@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStaticCopiesInput(t *testing.T) {
	contacts := testContacts()
	r := NewStatic(contacts)
	contacts[1].DisplayName = "Changed"

	got, _ := r.Search(context.Background(), "jane", 0)
	if len(got) != 1 || got[0].DisplayName != "Jane Doe" {
		t.Errorf("resolver must not see caller mutations: %+v", got)
	}
}
