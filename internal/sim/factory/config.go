package factory

type Config struct {
	// Grid extent: x in [-Width, Width), y in [-Height, Height).
	Width  int
	Height int

	// Real-time loop parameters (Run only; Tick takes elapsed directly).
	FrameRateHz    int
	TicksPerSecond float64
	// MaxElapsed caps the simulation ticks fed to one frame after a stall.
	MaxElapsed float64
}

func (c *Config) applyDefaults() {
	if c.Width <= 0 {
		c.Width = 6
	}
	if c.Height <= 0 {
		c.Height = 6
	}
	if c.FrameRateHz <= 0 {
		c.FrameRateHz = 20
	}
	if c.TicksPerSecond <= 0 {
		c.TicksPerSecond = 1
	}
	if c.MaxElapsed <= 0 {
		c.MaxElapsed = 5
	}
}

func (c Config) InBounds(p Coord) bool {
	return p.X >= -c.Width && p.X < c.Width && p.Y >= -c.Height && p.Y < c.Height
}
