package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func fusedInts(vals ...int) []Fused[int] {
	out := make([]Fused[int], len(vals))
	for i, v := range vals {
		out[i] = Fused[int]{Item: Item[int]{Payload: v}}
	}
	return out
}

func payloads(list []Fused[int]) []int {
	out := make([]int, len(list))
	for i, f := range list {
		out[i] = f.Payload
	}
	return out
}

func TestReorderSelected(t *testing.T) {
	tests := []struct {
		name  string
		list  []int
		order []int
		want  []int
	}{
		{"full permutation", []int{10, 20, 30}, []int{2, 0, 1}, []int{30, 10, 20}},
		{"partial selection keeps tail order", []int{10, 20, 30, 40}, []int{2}, []int{30, 10, 20, 40}},
		{"empty order is identity", []int{10, 20}, nil, []int{10, 20}},
		{"out of range and duplicates dropped", []int{10, 20, 30}, []int{5, 1, 1, -1}, []int{20, 10, 30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reorderSelected(fusedInts(tt.list...), tt.order)
			assert.Equal(t, tt.want, payloads(got))
		})
	}
}
