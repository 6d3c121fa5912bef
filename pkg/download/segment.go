package download

import "fmt"

// Segment is the half-open byte range [Start, End) of the resource.
type Segment struct {
	Start int64
	End   int64
}

func (s Segment) Len() int64 {
	return s.End - s.Start
}

func (s Segment) String() string {
	return fmt.Sprintf("[%d, %d)", s.Start, s.End)
}

// Plan partitions [0, total) into exactly workers contiguous segments of
// total/workers bytes each. The last segment absorbs the remainder. When workers
// exceeds total the leading segments are empty and must be skipped by the caller.
func Plan(total int64, workers int) []Segment {
	if workers < 1 {
		workers = 1
	}
	block := total / int64(workers)
	segments := make([]Segment, workers)
	for i := range segments {
		start := min(int64(i)*block, total)
		end := min(int64(i+1)*block, total)
		if i == workers-1 {
			end = total
		}
		segments[i] = Segment{Start: start, End: end}
	}
	return segments
}
