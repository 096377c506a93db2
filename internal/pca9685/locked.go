package pca9685

import "sync"

// Locked serializes access to a Controller shared by several goroutines.
// Every method holds the lock for the whole register sequence, so protocols
// such as SetFrequency never interleave.
type Locked struct {
	mu sync.Mutex
	c  *Controller
}

func NewLocked(c *Controller) *Locked {
	return &Locked{c: c}
}

// Do runs fn with exclusive access to the controller.
func (l *Locked) Do(fn func(c *Controller) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.c)
}

func (l *Locked) SetFrequency(hz float64) error {
	return l.Do(func(c *Controller) error { return c.SetFrequency(hz) })
}

func (l *Locked) SetOutputMode(totemPole bool) error {
	return l.Do(func(c *Controller) error { return c.SetOutputMode(totemPole) })
}

func (l *Locked) SetDuty(ch int, value uint16, invert bool) error {
	return l.Do(func(c *Controller) error { return c.SetDuty(ch, value, invert) })
}

func (l *Locked) SetPulseMicroseconds(ch int, us uint16) error {
	return l.Do(func(c *Controller) error { return c.SetPulseMicroseconds(ch, us) })
}

func (l *Locked) SetTicks(ch int, on, off uint16) error {
	return l.Do(func(c *Controller) error { return c.SetTicks(ch, on, off) })
}

func (l *Locked) Sleep() error {
	return l.Do(func(c *Controller) error { return c.Sleep() })
}

func (l *Locked) Wake() error {
	return l.Do(func(c *Controller) error { return c.Wake() })
}

func (l *Locked) Ticks(ch int) (on, off uint16, err error) {
	err = l.Do(func(c *Controller) error {
		on, off, err = c.Ticks(ch)
		return err
	})
	return on, off, err
}

func (l *Locked) Channel(ch int) (ChannelState, error) {
	var cs ChannelState
	err := l.Do(func(c *Controller) error {
		var err error
		cs, err = c.Channel(ch)
		return err
	})
	return cs, err
}

func (l *Locked) ReadState() (State, error) {
	var st State
	err := l.Do(func(c *Controller) error {
		var err error
		st, err = c.ReadState()
		return err
	})
	return st, err
}
