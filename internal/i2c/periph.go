package i2c

import (
	"fmt"
	"sync"

	pi2c "periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var hostInit = sync.OnceValue(func() error {
	_, err := host.Init()
	return err
})

// PeriphDevice is a register transport built on periph.io. It works on any
// host periph has a driver for (Linux sysfs i2c, FTDI/MCP2221 USB bridges)
// and is selected with backend=periph.
type PeriphDevice struct {
	bus pi2c.BusCloser
	dev *pi2c.Dev
}

// OpenPeriph initializes the periph host drivers once and opens busName
// ("" for the first bus, "1" or "I2C1" for a specific one).
func OpenPeriph(busName string, addr uint16) (*PeriphDevice, error) {
	if addr == 0 || addr > 0x7F {
		return nil, fmt.Errorf("invalid i2c addr 0x%X", addr)
	}
	if err := hostInit(); err != nil {
		return nil, fmt.Errorf("i2c: periph host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("i2c: periph open bus %q: %w", busName, err)
	}
	return newPeriphDevice(bus, addr), nil
}

func newPeriphDevice(bus pi2c.BusCloser, addr uint16) *PeriphDevice {
	return &PeriphDevice{bus: bus, dev: &pi2c.Dev{Bus: bus, Addr: addr}}
}

func (p *PeriphDevice) ReadRegU8(reg byte) (byte, error) {
	var b [1]byte
	if err := p.ReadReg(reg, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (p *PeriphDevice) ReadReg(reg byte, dst []byte) error {
	if p == nil || p.dev == nil {
		return fmt.Errorf("i2c device is nil")
	}
	return p.dev.Tx([]byte{reg}, dst)
}

func (p *PeriphDevice) WriteReg(reg, value byte) error {
	if p == nil || p.dev == nil {
		return fmt.Errorf("i2c device is nil")
	}
	return p.dev.Tx([]byte{reg, value}, nil)
}

func (p *PeriphDevice) Close() error {
	if p == nil || p.bus == nil {
		return nil
	}
	err := p.bus.Close()
	p.bus = nil
	p.dev = nil
	return err
}
