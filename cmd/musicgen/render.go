package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/cuongbtq/musicgen/internal/tracker"
)

// terminalSink prints one line per rendered snapshot
type terminalSink struct {
	out io.Writer
}

func newTerminalSink(out io.Writer) *terminalSink {
	return &terminalSink{out: out}
}

func (s *terminalSink) Render(snap tracker.Snapshot) {
	fmt.Fprintln(s.out, formatSnapshot(snap))
}

func formatSnapshot(snap tracker.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", snap.State)

	if snap.Job != nil {
		fmt.Fprintf(&b, " id=%s status=%s progress=%.0f%%", snap.Job.ID, snap.Job.Status, snap.Job.Progress*100)
		if snap.Job.RetryCount > 0 {
			fmt.Fprintf(&b, " retries=%d", snap.Job.RetryCount)
		}
	}
	if snap.Polls > 0 {
		fmt.Fprintf(&b, " polls=%d", snap.Polls)
	}
	if snap.Job != nil && snap.Job.AudioURL != "" {
		fmt.Fprintf(&b, " audio=%s", snap.Job.AudioURL)
	}
	if snap.Error != "" {
		fmt.Fprintf(&b, " error=%q", snap.Error)
	}

	return b.String()
}
