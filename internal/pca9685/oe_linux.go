//go:build linux

package pca9685

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// OutputEnable drives the chip's active-low OE pin. Pulling OE high puts
// every output into its disabled state without touching the PWM registers,
// which makes it the fastest way to cut all servos at once.
type OutputEnable struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// OpenOutputEnable requests line (a name such as "GPIO17" or a numeric
// offset) on chip as an output, initially disabled. An empty chip searches
// every /dev/gpiochip* for the line name.
func OpenOutputEnable(chip, line string) (*OutputEnable, error) {
	if strings.TrimSpace(line) == "" {
		return nil, fmt.Errorf("pca9685: output enable line is empty")
	}
	candidates := []string{chip}
	if chip == "" {
		candidates = candidates[:0]
		entries, _ := os.ReadDir("/dev")
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), "gpiochip") {
				candidates = append(candidates, filepath.Join("/dev", e.Name()))
			}
		}
	}

	var lastErr error
	for _, chipPath := range candidates {
		c, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			lastErr = err
			continue
		}
		offset, err := strconv.Atoi(line)
		if err != nil {
			offset, err = c.FindLine(line)
		}
		if err != nil {
			lastErr = err
			_ = c.Close()
			continue
		}
		l, err := c.RequestLine(offset, gpiocdev.AsOutput(1), gpiocdev.WithConsumer("novaground-oe"))
		if err != nil {
			lastErr = err
			_ = c.Close()
			continue
		}
		return &OutputEnable{chip: c, line: l}, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no gpio chips")
	}
	return nil, fmt.Errorf("pca9685: output enable line %q: %w", line, lastErr)
}

func (o *OutputEnable) Enable() error {
	if o == nil || o.line == nil {
		return fmt.Errorf("pca9685: output enable not open")
	}
	return o.line.SetValue(0)
}

func (o *OutputEnable) Disable() error {
	if o == nil || o.line == nil {
		return fmt.Errorf("pca9685: output enable not open")
	}
	return o.line.SetValue(1)
}

// Close leaves the outputs disabled and releases the line.
func (o *OutputEnable) Close() error {
	if o == nil || o.line == nil {
		return nil
	}
	_ = o.line.SetValue(1)
	err := o.line.Close()
	o.line = nil
	if o.chip != nil {
		_ = o.chip.Close()
		o.chip = nil
	}
	return err
}
