package batch

import "time"

// Outcome is how a chunk ended.
type Outcome string

const (
	// OutcomePosted means the chunk's records were accepted by the sink.
	OutcomePosted Outcome = "posted"

	// OutcomeEmpty means no record survived fetch and transform, so nothing was posted.
	OutcomeEmpty Outcome = "empty"

	// OutcomeFailed means the post was rejected or the chunk panicked.
	OutcomeFailed Outcome = "failed"
)

// RecordFailure is one dropped record and why.
type RecordFailure struct {
	ID  int64
	Err error
}

// ChunkResult describes the processing of one chunk.
type ChunkResult struct {
	Index             int
	Requested         int
	Fetched           int
	Posted            int
	Outcome           Outcome
	Message           string
	Err               error
	FetchFailures     []RecordFailure
	TransformFailures []RecordFailure
}

// Summary aggregates every chunk of a run.
type Summary struct {
	IDs               int
	Chunks            int
	Posted            int
	Empty             int
	Failed            int
	Skipped           int
	RecordsPosted     int
	FetchFailures     int
	TransformFailures int
	FailedChunks      []int
	SkippedChunks     []int
	Duration          time.Duration
}

// tally is one worker's private view of its results, merged after the join.
type tally struct {
	processed         int
	posted            int
	empty             int
	failed            []int
	skipped           []int
	recordsPosted     int
	fetchFailures     int
	transformFailures int
}

func (t *tally) record(res ChunkResult) {
	t.processed++
	t.fetchFailures += len(res.FetchFailures)
	t.transformFailures += len(res.TransformFailures)
	switch res.Outcome {
	case OutcomePosted:
		t.posted++
		t.recordsPosted += res.Posted
	case OutcomeEmpty:
		t.empty++
	default:
		t.failed = append(t.failed, res.Index)
	}
}

func (s *Summary) add(t *tally) {
	s.Posted += t.posted
	s.Empty += t.empty
	s.Failed += len(t.failed)
	s.Skipped += len(t.skipped)
	s.RecordsPosted += t.recordsPosted
	s.FetchFailures += t.fetchFailures
	s.TransformFailures += t.transformFailures
	s.FailedChunks = append(s.FailedChunks, t.failed...)
	s.SkippedChunks = append(s.SkippedChunks, t.skipped...)
}
