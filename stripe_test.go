package bigfile

import (
	"reflect"
	"testing"
)

func TestEvenCounts(t *testing.T) {
	counts, err := evenCounts(10, 3)
	if err != nil {
		t.Fatalf("evenCounts: %v", err)
	}
	want := []int64{3, 3, 4}
	if !reflect.DeepEqual(counts, want) {
		t.Fatalf("evenCounts(10, 3) = %v, want %v", counts, want)
	}
	var sum int64
	for _, c := range counts {
		sum += c
	}
	if sum != 10 {
		t.Fatalf("counts sum to %d, want 10", sum)
	}
}

func TestStripePlanLocateAndSplit(t *testing.T) {
	plan := newStripePlan([]int64{4, 4, 4})
	if plan.size() != 12 {
		t.Fatalf("size() = %d, want 12", plan.size())
	}

	file, off, err := plan.locate(5)
	if err != nil || file != 1 || off != 1 {
		t.Fatalf("locate(5) = (%d,%d,%v), want (1,1,nil)", file, off, err)
	}

	spans, err := plan.split(3, 6)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	want := []span{
		{file: 0, offset: 3, length: 1},
		{file: 1, offset: 0, length: 4},
		{file: 2, offset: 0, length: 1},
	}
	if !reflect.DeepEqual(spans, want) {
		t.Fatalf("split(3,6) = %+v, want %+v", spans, want)
	}
}

func TestStripePlanOutOfBounds(t *testing.T) {
	plan := newStripePlan([]int64{4, 4})
	if _, _, err := plan.locate(8); err == nil {
		t.Fatal("expected error locating record past size")
	}
	if _, err := plan.split(5, 10); err == nil {
		t.Fatal("expected error splitting a range past size")
	}
}
