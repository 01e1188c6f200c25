package cmdutil

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/earnout-labs/dealvault/pkg/bus"
	"github.com/earnout-labs/dealvault/pkg/bus/events"
)

// IsTerminal reports whether stdout is an interactive terminal.
func IsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// StageText describes a workflow stage for display.
func StageText(ev events.DocumentEvent) string {
	switch ev.Stage {
	case events.StageEncrypting:
		return fmt.Sprintf("encrypting %s", humanize.IBytes(ev.Size))
	case events.StageUploading:
		return fmt.Sprintf("uploading %s of ciphertext", humanize.IBytes(ev.Size))
	case events.StageUploaded:
		return fmt.Sprintf("stored blob %s", ev.BlobID)
	case events.StageVerifying:
		return "checking access"
	case events.StageDownloading:
		return fmt.Sprintf("downloading blob %s", ev.BlobID)
	case events.StageDecrypting:
		return "fetching key shares and decrypting"
	case events.StageRetrieved:
		return fmt.Sprintf("retrieved %s", humanize.IBytes(ev.Size))
	case events.StageFailed:
		return fmt.Sprintf("failed: %s", ev.Error)
	}
	return string(ev.Stage)
}

// ShowProgress renders document events for dealID on a spinner written to w
// while stdout is a terminal. The returned func stops rendering.
func ShowProgress(b bus.Subscriber, w io.Writer, dealID string) (stop func(), err error) {
	if !IsTerminal() {
		return func() {}, nil
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w)) // Spinner: ⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏
	s.Suffix = " starting"
	handler := func(ev events.DocumentEvent) {
		s.Lock()
		s.Suffix = " " + StageText(ev)
		s.Unlock()
	}
	topic := events.TopicDocument(dealID)
	if err := b.Subscribe(topic, handler); err != nil {
		return nil, fmt.Errorf("subscribing to progress events: %w", err)
	}
	s.Start()
	return func() {
		s.Stop()
		_ = b.Unsubscribe(topic, handler)
	}, nil
}
