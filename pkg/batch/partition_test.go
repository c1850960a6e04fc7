package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartition(t *testing.T) {
	tests := []struct {
		name string
		ids  []int64
		size int
		want [][]int64
	}{
		{"empty", nil, 2, nil},
		{"exact", []int64{1, 2, 3, 4}, 2, [][]int64{{1, 2}, {3, 4}}},
		{"remainder", []int64{1, 2, 3}, 2, [][]int64{{1, 2}, {3}}},
		{"single chunk", []int64{5, 6}, 100, [][]int64{{5, 6}}},
		{"size one", []int64{9, 8, 7}, 1, [][]int64{{9}, {8}, {7}}},
		{"duplicates kept", []int64{1, 1, 2}, 2, [][]int64{{1, 1}, {2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Partition(tt.ids, tt.size)
			require.Len(t, chunks, len(tt.want))
			for i, c := range chunks {
				assert.Equal(t, i, c.Index)
				assert.Equal(t, tt.want[i], c.IDs)
			}
		})
	}
}

func TestPartition_CoversInputInOrder(t *testing.T) {
	for l := 0; l <= 23; l++ {
		ids := make([]int64, l)
		for i := range ids {
			ids[i] = int64(i * 3)
		}
		for size := 1; size <= 7; size++ {
			chunks := Partition(ids, size)
			assert.Len(t, chunks, (l+size-1)/size, "len=%d size=%d", l, size)

			var joined []int64
			for _, c := range chunks {
				assert.NotEmpty(t, c.IDs)
				assert.LessOrEqual(t, len(c.IDs), size)
				joined = append(joined, c.IDs...)
			}
			if l == 0 {
				assert.Empty(t, joined)
			} else {
				assert.Equal(t, ids, joined)
			}
		}
	}
}

func TestPartition_ChunksDoNotAlias(t *testing.T) {
	ids := []int64{1, 2, 3, 4}
	chunks := Partition(ids, 2)

	grown := append(chunks[0].IDs, 99)
	assert.Equal(t, []int64{1, 2, 99}, grown)
	assert.Equal(t, []int64{3, 4}, chunks[1].IDs)
}

func TestProgress(t *testing.T) {
	p := newProgress(3)
	assert.Equal(t, 3, p.Total())
	assert.Equal(t, 0, p.Completed())
	assert.Equal(t, 1, p.complete())
	assert.Equal(t, 2, p.complete())
	assert.Equal(t, 2, p.Completed())
}
