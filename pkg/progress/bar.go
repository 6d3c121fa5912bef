package progress

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Bar renders a byte progress bar, on stderr unless Output is set.
type Bar struct {
	Description string
	Output      io.Writer
}

func NewBar(description string) *Bar {
	return &Bar{Description: description}
}

func (b *Bar) Listen(total int64, events <-chan Event) {
	output := b.Output
	if output == nil {
		output = os.Stderr
	}
	bar := progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(output),
		progressbar.OptionSetDescription(b.Description),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(65_000_000),
		progressbar.OptionOnCompletion(func() {
			_, _ = io.WriteString(output, "\n")
		}),
		progressbar.OptionFullWidth(),
	)
	for event := range events {
		_ = bar.Add64(event.Length)
	}
	_ = bar.Finish()
}
