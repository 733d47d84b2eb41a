package status

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/emotionice/treexlauncher/internal/common/logger"
	"github.com/emotionice/treexlauncher/internal/common/output"
)

// Console prints one colored line per state change
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a Console writing to w (stdout when nil)
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w}
}

// Show prints "[Label] detail"
func (c *Console) Show(state State, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line := output.FormatLabel(output.ByName(state.ColorName()), state.Label())
	if detail != "" {
		line += " " + detail
	}
	fmt.Fprintln(c.w, line)
	logger.Debug("status: %s %s", state.Label(), detail)
}
