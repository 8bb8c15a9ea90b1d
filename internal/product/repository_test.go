package product

import "testing"

func TestInMemoryReset_AssignedIDsSkipExplicitOnes(t *testing.T) {
	repo := NewInMemoryRepository([]Product{
		{Name: "A", Path: "a"},
		{ID: 1, Name: "B", Path: "b"},
		{Name: "C", Path: "c"},
	})

	seen := map[int]string{}
	for _, p := range repo.List() {
		if other, ok := seen[p.ID]; ok {
			t.Fatalf("id %d used by both %s and %s", p.ID, other, p.Name)
		}
		seen[p.ID] = p.Name
	}
	if seen[1] != "B" {
		t.Fatalf("explicit id must be kept, got %v", seen)
	}

	// a second reset starts over from the new list
	if err := repo.Reset([]Product{{Name: "D", Path: "d"}}); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if list := repo.List(); len(list) != 1 || list[0].ID != 1 {
		t.Fatalf("unexpected catalog after reset %+v", list)
	}
}

func TestService_ListByIDsDedupes(t *testing.T) {
	svc := NewService(NewInMemoryRepository([]Product{
		{ID: 1, Name: "A", Path: "a"},
		{ID: 2, Name: "B", Path: "b"},
	}))

	got, err := svc.ListByIDs([]int{2, 1, 2, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 1 {
		t.Fatalf("unexpected products %+v", got)
	}
}
