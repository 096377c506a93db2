//go:build !linux

package pca9685

import "fmt"

type OutputEnable struct{}

func OpenOutputEnable(chip, line string) (*OutputEnable, error) {
	return nil, fmt.Errorf("pca9685: output enable unsupported on this platform")
}

func (o *OutputEnable) Enable() error  { return fmt.Errorf("pca9685: output enable unsupported") }
func (o *OutputEnable) Disable() error { return fmt.Errorf("pca9685: output enable unsupported") }
func (o *OutputEnable) Close() error   { return nil }
