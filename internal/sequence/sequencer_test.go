package sequence

import "testing"

func TestNextIsStrictlyIncreasing(t *testing.T) {
	seq, err := New(7)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	var prev uint64
	for i := 0; i < 1000; i++ {
		id, err := seq.Next()
		if err != nil {
			t.Fatalf("next at %d: %v", i, err)
		}
		if id <= prev {
			t.Fatalf("id %d not greater than predecessor %d", id, prev)
		}
		prev = id
	}
}

func TestIndependentSequencersDoNotCollide(t *testing.T) {
	a, err := New(1)
	if err != nil {
		t.Fatalf("new a: %v", err)
	}
	b, err := New(2)
	if err != nil {
		t.Fatalf("new b: %v", err)
	}

	seen := make(map[uint64]struct{}, 200)
	for i := 0; i < 100; i++ {
		for _, s := range []*Sequencer{a, b} {
			id, err := s.Next()
			if err != nil {
				t.Fatalf("next: %v", err)
			}
			if _, dup := seen[id]; dup {
				t.Fatalf("duplicate id %d across machines", id)
			}
			seen[id] = struct{}{}
		}
	}
}
