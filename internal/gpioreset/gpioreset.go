// Package gpioreset toggles a modem's reset or power-enable line on boards
// that wire one to a GPIO controller rather than leaving it tied to the USB
// bus's own power. It is optional: a modem with no such line simply never
// constructs a Line.
package gpioreset

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Line drives one GPIO offset on a chip (e.g. "gpiochip0") as an
// active-high reset or power-enable output.
type Line struct {
	line *gpiocdev.Line
}

// Open requests offset on chip as an output, initially deasserted.
func Open(chip string, offset int) (*Line, error) {
	l, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("qmimodem"))
	if err != nil {
		return nil, fmt.Errorf("gpioreset: request %s:%d: %w", chip, offset, err)
	}
	return &Line{line: l}, nil
}

// Pulse asserts the line, holds it for d, then deasserts it again. Most
// modems treat a reset pulse under a few tens of milliseconds as noise, so
// callers should pass a duration their hardware's datasheet specifies.
func (r *Line) Pulse(d time.Duration) error {
	if err := r.line.SetValue(1); err != nil {
		return fmt.Errorf("gpioreset: assert: %w", err)
	}
	time.Sleep(d)
	if err := r.line.SetValue(0); err != nil {
		return fmt.Errorf("gpioreset: deassert: %w", err)
	}
	return nil
}

// Close releases the line back to the kernel.
func (r *Line) Close() error {
	return r.line.Close()
}
