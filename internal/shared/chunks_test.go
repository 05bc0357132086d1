package shared

import (
	"testing"
)

func TestReverseBlocks(t *testing.T) {
	tests := []struct {
		name  string
		items []string
		size  int
		want  [][]string
	}{
		{
			name:  "even split",
			items: []string{"a", "b", "c", "d"},
			size:  2,
			want:  [][]string{{"c", "d"}, {"a", "b"}},
		},
		{
			name:  "uneven head block",
			items: []string{"a", "b", "c", "d", "e"},
			size:  2,
			want:  [][]string{{"d", "e"}, {"b", "c"}, {"a"}},
		},
		{
			name:  "single block",
			items: []string{"a", "b"},
			size:  10,
			want:  [][]string{{"a", "b"}},
		},
		{
			name:  "empty",
			items: nil,
			size:  2,
			want:  nil,
		},
		{
			name:  "zero size",
			items: []string{"a"},
			size:  0,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReverseBlocks(tt.items, tt.size)
			if len(got) != len(tt.want) {
				t.Fatalf("ReverseBlocks() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if len(got[i]) != len(tt.want[i]) {
					t.Fatalf("block %d = %v, want %v", i, got[i], tt.want[i])
				}
				for j := range tt.want[i] {
					if got[i][j] != tt.want[i][j] {
						t.Errorf("block %d = %v, want %v", i, got[i], tt.want[i])
					}
				}
			}
		})
	}

	t.Run("inserting blocks at a fixed position preserves order", func(t *testing.T) {
		items := []int{1, 2, 3, 4, 5}

		var result []int
		for _, block := range ReverseBlocks(items, 2) {
			merged := make([]int, 0, len(block)+len(result))
			merged = append(merged, block...)
			merged = append(merged, result...)
			result = merged
		}

		for i, v := range result {
			if v != items[i] {
				t.Fatalf("result = %v, want %v", result, items)
			}
		}
	})
}

func TestBlocks(t *testing.T) {
	got := Blocks([]int{1, 2, 3, 4, 5}, 2)
	want := [][]int{{1, 2}, {3, 4}, {5}}

	if len(got) != len(want) {
		t.Fatalf("Blocks() = %v, want %v", got, want)
	}
	for i := range want {
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Errorf("Blocks() = %v, want %v", got, want)
			}
		}
	}
}
