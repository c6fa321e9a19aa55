package audio_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/ringwatch/pkg/audio"
)

func seq(from, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(from + i)
	}
	return out
}

func TestRing_AppendWithinCapacity(t *testing.T) {
	t.Parallel()
	r := audio.NewRing(8)
	r.Append(seq(0, 3))
	r.Append(seq(3, 2))

	if r.Len() != 5 || r.Full() {
		t.Fatalf("Len = %d Full = %v, want 5 false", r.Len(), r.Full())
	}
	if diff := cmp.Diff(seq(0, 5), r.Snapshot(nil)); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestRing_EvictsOldest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		chunks []int
	}{
		{name: "single oversized append", chunks: []int{11}},
		{name: "exact fill then overflow", chunks: []int{4, 3}},
		{name: "many small appends", chunks: []int{1, 2, 3, 1, 2, 3, 1}},
		{name: "wrapping append", chunks: []int{3, 2, 3, 3}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			const capacity = 4
			r := audio.NewRing(capacity)
			next := 0
			for _, n := range tc.chunks {
				r.Append(seq(next, n))
				next += n
				if r.Len() > capacity {
					t.Fatalf("Len = %d exceeds capacity %d", r.Len(), capacity)
				}
			}
			if r.Len() != capacity {
				t.Fatalf("Len = %d, want %d", r.Len(), capacity)
			}
			if diff := cmp.Diff(seq(next-capacity, capacity), r.Snapshot(nil)); diff != "" {
				t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRing_LenNeverExceedsCapacity(t *testing.T) {
	t.Parallel()
	const capacity = 44100
	r := audio.NewRing(capacity)
	block := make([]float32, 4096)
	for range 50 {
		r.Append(block)
		if r.Len() > capacity {
			t.Fatalf("Len = %d exceeds capacity", r.Len())
		}
	}
	if r.Len() != capacity || !r.Full() {
		t.Errorf("Len = %d Full = %v, want %d true", r.Len(), r.Full(), capacity)
	}
}

func TestRing_SnapshotReusesBuffer(t *testing.T) {
	t.Parallel()
	r := audio.NewRing(4)
	r.Append(seq(0, 4))
	dst := make([]float32, 0, 16)
	got := r.Snapshot(dst)
	if &got[0] != &dst[:1][0] {
		t.Error("Snapshot allocated although dst had enough capacity")
	}
}

func TestRing_Reset(t *testing.T) {
	t.Parallel()
	r := audio.NewRing(4)
	r.Append(seq(0, 6))
	r.Reset()
	if r.Len() != 0 || r.Cap() != 4 {
		t.Errorf("after Reset Len = %d Cap = %d, want 0 4", r.Len(), r.Cap())
	}
}
