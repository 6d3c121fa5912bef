package download

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/replicate/sledge/pkg/client"
	"github.com/replicate/sledge/pkg/progress"
	"github.com/replicate/sledge/pkg/sink"
)

// fetchSegment downloads one segment and writes it at its offset. Empty segments
// issue no request. Failures are returned as-is and never retried here.
func fetchSegment(ctx context.Context, logger zerolog.Logger, c *client.Client, req Request, index int, seg Segment, s sink.Sink, events chan<- progress.Event) (int64, error) {
	if seg.Len() == 0 {
		return 0, nil
	}
	logger.Debug().
		Int("segment", index).
		Int64("start", seg.Start).
		Int64("end", seg.End).
		Msg("Fetching")

	resp, err := c.GetRange(ctx, req.url, req.header, seg.Start, seg.End-1)
	if err != nil {
		return 0, fmt.Errorf("segment %d %s: %w", index, seg, err)
	}
	defer resp.Body.Close()

	n, err := s.WriteAt(seg.Start, resp.Body, seg.Len(), events)
	if err != nil {
		return n, fmt.Errorf("segment %d %s: %w", index, seg, err)
	}
	return n, nil
}
