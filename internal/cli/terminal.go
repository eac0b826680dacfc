package cli

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Terminal abstracts screen handling.
type Terminal interface {
	// Clear erases the screen.
	Clear() error
}

// clearSequence moves the cursor home and erases the display.
const clearSequence = "\x1b[H\x1b[2J"

type ansiTerminal struct {
	w       io.Writer
	enabled bool
}

// NewTerminal returns a Terminal writing to f. Clear is a no-op unless f is a
// terminal, so redirected output stays free of escape sequences.
func NewTerminal(f *os.File) Terminal {
	fd := f.Fd()
	return &ansiTerminal{
		w:       colorable.NewColorable(f),
		enabled: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}
}

func (t *ansiTerminal) Clear() error {
	if !t.enabled {
		return nil
	}
	_, err := io.WriteString(t.w, clearSequence)
	return err
}
