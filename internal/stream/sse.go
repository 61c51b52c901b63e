package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Frame is one raw unit of the push stream: an event name plus the
// joined data lines, before classification.
type Frame struct {
	Name string
	Data string
}

// scanFrames reads server-sent-event framing ("event: <name>" and
// "data: <body>" lines terminated by a blank line) and invokes deliver
// for each complete frame. It returns nil when the context is canceled
// and an error when the underlying reader fails or ends.
func scanFrames(ctx context.Context, r io.Reader, deliver func(Frame)) error {
	scanner := bufio.NewScanner(r)
	// Accumulated response text can make individual frames large.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		name      string
		dataLines []string
	)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := scanner.Text()

		// Blank line terminates the frame.
		if line == "" {
			if len(dataLines) > 0 || name != "" {
				frameName := name
				if frameName == "" {
					frameName = "message"
				}
				deliver(Frame{Name: frameName, Data: strings.Join(dataLines, "\n")})
			}
			name = ""
			dataLines = nil
			continue
		}

		switch {
		case strings.HasPrefix(line, ":"):
			// Comment line, used by some servers as a keepalive.
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
		// Other fields (id:, retry:) are not used by this feed.
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading stream: %w", err)
	}

	// A clean EOF on a persistent feed is still an abnormal close from
	// the client's point of view; the caller decides whether to retry.
	return io.EOF
}
