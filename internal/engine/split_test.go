package engine

import (
	"fmt"
	"testing"
)

func makeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("r-%03d", i)
	}
	return ids
}

func TestSplitRecipients_EvenSplit(t *testing.T) {
	ids := makeIDs(100)

	res := SplitRecipients(ids, 20, []string{"var-a", "var-b"})

	if res.TotalTestRecipients != 20 {
		t.Errorf("TotalTestRecipients = %d, want 20", res.TotalTestRecipients)
	}
	if len(res.TestGroups["var-a"]) != 10 {
		t.Errorf("group a size = %d, want 10", len(res.TestGroups["var-a"]))
	}
	if len(res.TestGroups["var-b"]) != 10 {
		t.Errorf("group b size = %d, want 10", len(res.TestGroups["var-b"]))
	}
	if len(res.RemainingIDs) != 80 {
		t.Errorf("remaining = %d, want 80", len(res.RemainingIDs))
	}
}

func TestSplitRecipients_ThreeVariants(t *testing.T) {
	ids := makeIDs(50)

	res := SplitRecipients(ids, 30, []string{"a", "b", "c"})

	if res.TotalTestRecipients != 15 {
		t.Errorf("TotalTestRecipients = %d, want 15", res.TotalTestRecipients)
	}
	for _, vid := range []string{"a", "b", "c"} {
		if len(res.TestGroups[vid]) != 5 {
			t.Errorf("group %s size = %d, want 5", vid, len(res.TestGroups[vid]))
		}
	}
	if len(res.RemainingIDs) != 35 {
		t.Errorf("remaining = %d, want 35", len(res.RemainingIDs))
	}
}

func TestSplitRecipients_RemainderGoesToFirstVariants(t *testing.T) {
	ids := makeIDs(10)

	// 70% of 10 = 7 test recipients over 2 variants: 4 and 3.
	res := SplitRecipients(ids, 70, []string{"a", "b"})

	if res.TotalTestRecipients != 7 {
		t.Fatalf("TotalTestRecipients = %d, want 7", res.TotalTestRecipients)
	}
	if len(res.TestGroups["a"]) != 4 {
		t.Errorf("group a size = %d, want 4", len(res.TestGroups["a"]))
	}
	if len(res.TestGroups["b"]) != 3 {
		t.Errorf("group b size = %d, want 3", len(res.TestGroups["b"]))
	}
	if len(res.RemainingIDs) != 3 {
		t.Errorf("remaining = %d, want 3", len(res.RemainingIDs))
	}
}

func TestSplitRecipients_NoOverlap(t *testing.T) {
	ids := makeIDs(40)

	res := SplitRecipients(ids, 50, []string{"a", "b"})

	seen := make(map[string]string)
	for vid, group := range res.TestGroups {
		for _, id := range group {
			if prev, dup := seen[id]; dup {
				t.Fatalf("recipient %s assigned to both %s and %s", id, prev, vid)
			}
			seen[id] = vid
		}
	}
	for _, id := range res.RemainingIDs {
		if vid, dup := seen[id]; dup {
			t.Fatalf("recipient %s both in group %s and remaining", id, vid)
		}
	}
	if len(seen)+len(res.RemainingIDs) != 40 {
		t.Errorf("partition covers %d of 40 recipients", len(seen)+len(res.RemainingIDs))
	}
}

func TestSplitRecipients_HundredPercent(t *testing.T) {
	ids := makeIDs(9)

	res := SplitRecipients(ids, 100, []string{"a", "b"})

	if res.TotalTestRecipients != 9 {
		t.Errorf("TotalTestRecipients = %d, want 9", res.TotalTestRecipients)
	}
	if len(res.RemainingIDs) != 0 {
		t.Errorf("remaining = %d, want 0", len(res.RemainingIDs))
	}
}

func TestSplitRecipients_Deterministic(t *testing.T) {
	ids := makeIDs(30)

	r1 := SplitRecipients(ids, 40, []string{"a", "b"})
	r2 := SplitRecipients(ids, 40, []string{"a", "b"})

	for vid := range r1.TestGroups {
		if len(r1.TestGroups[vid]) != len(r2.TestGroups[vid]) {
			t.Fatalf("group %s sizes differ between runs", vid)
		}
		for i := range r1.TestGroups[vid] {
			if r1.TestGroups[vid][i] != r2.TestGroups[vid][i] {
				t.Fatalf("group %s ordering differs between runs", vid)
			}
		}
	}
}

func TestSplitRecipients_OutOfRangePercentClamps(t *testing.T) {
	ids := makeIDs(10)

	res := SplitRecipients(ids, -20, []string{"a", "b"})
	if res.TotalTestRecipients != 0 {
		t.Errorf("TotalTestRecipients = %d, want 0 for a negative percent", res.TotalTestRecipients)
	}
	if len(res.RemainingIDs) != 10 {
		t.Errorf("remaining = %d, want the full set held back", len(res.RemainingIDs))
	}

	res = SplitRecipients(ids, 150, []string{"a", "b"})
	if res.TotalTestRecipients != 10 {
		t.Errorf("TotalTestRecipients = %d, want 10 for an over-100 percent", res.TotalTestRecipients)
	}
	if len(res.RemainingIDs) != 0 {
		t.Errorf("remaining = %d, want 0", len(res.RemainingIDs))
	}
}

func TestSplitRecipients_EmptyInput(t *testing.T) {
	res := SplitRecipients(nil, 50, []string{"a", "b"})

	if res.TotalTestRecipients != 0 {
		t.Errorf("TotalTestRecipients = %d, want 0", res.TotalTestRecipients)
	}
	if len(res.RemainingIDs) != 0 {
		t.Errorf("remaining = %d, want 0", len(res.RemainingIDs))
	}
}
