package batch

// Chunk is a consecutive slice of the ID list owned by one worker.
type Chunk struct {
	Index int
	IDs   []int64
}

// Partition splits ids into consecutive chunks of at most size IDs, keeping
// order. Chunk k covers ids[k*size : min((k+1)*size, len(ids))]. The chunks
// share the backing array but have capped capacity, so appending to one
// never writes into the next.
func Partition(ids []int64, size int) []Chunk {
	if size < 1 {
		size = 1
	}
	chunks := make([]Chunk, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, Chunk{Index: len(chunks), IDs: ids[start:end:end]})
	}
	return chunks
}
