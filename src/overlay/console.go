package overlay

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Console renders explanations as plain text on a writer. It stands in for a
// graphical overlay on headless setups and during one-shot invocations.
type Console struct {
	Out io.Writer
}

func NewConsole() *Console {
	return &Console{Out: os.Stdout}
}

func (c *Console) ShowAt(x, y int) {
	log.Printf("Overlay anchored at (%d,%d)", x, y)
	fmt.Fprintln(c.Out, "---")
}

func (c *Console) AppendChunk(chunk string) {
	fmt.Fprint(c.Out, chunk)
}

func (c *Console) Completed(fullText string) {
	fmt.Fprintln(c.Out)
	log.Printf("Explanation completed: %d characters", len(fullText))
}

func (c *Console) Failed(kind string) {
	fmt.Fprintln(c.Out)
	log.Printf("Explanation ended with failure: %s", kind)
}

func (c *Console) SetFollowUps(questions []string) {
	fmt.Fprintln(c.Out)
	for i, q := range questions {
		fmt.Fprintf(c.Out, "  %d. %s\n", i+1, q)
	}
}

func (c *Console) Hide() {
	fmt.Fprintln(c.Out, "---")
}
