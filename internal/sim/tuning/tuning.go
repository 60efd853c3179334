package tuning

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"factorygrid.ai/internal/sim/factory"
)

// EnvPrefix prefixes every environment override, e.g. FACTORY_GRID_WIDTH.
const EnvPrefix = "FACTORY"

type Tuning struct {
	Grid        Grid        `mapstructure:"grid" yaml:"grid" json:"grid"`
	Sim         Sim         `mapstructure:"sim" yaml:"sim" json:"sim"`
	Persistence Persistence `mapstructure:"persistence" yaml:"persistence" json:"persistence"`
	Observer    Observer    `mapstructure:"observer" yaml:"observer" json:"observer"`

	// CatalogPath points at a recipes JSON file; empty means the built-in catalog.
	CatalogPath string `mapstructure:"catalog_path" yaml:"catalog_path" json:"catalog_path"`
}

type Grid struct {
	Width  int `mapstructure:"width" yaml:"width" json:"width" validate:"min=1,max=4096"`
	Height int `mapstructure:"height" yaml:"height" json:"height" validate:"min=1,max=4096"`
}

type Sim struct {
	FrameRateHz    int     `mapstructure:"frame_rate_hz" yaml:"frame_rate_hz" json:"frame_rate_hz" validate:"min=1,max=240"`
	TicksPerSecond float64 `mapstructure:"ticks_per_second" yaml:"ticks_per_second" json:"ticks_per_second" validate:"gt=0,lte=1000"`
	// MaxElapsed clamps the ticks fed to one frame after a stall.
	MaxElapsed float64 `mapstructure:"max_elapsed" yaml:"max_elapsed" json:"max_elapsed" validate:"gt=0"`
}

type Persistence struct {
	AutosaveSeconds int `mapstructure:"autosave_seconds" yaml:"autosave_seconds" json:"autosave_seconds" validate:"min=1"`
	// KeepSnapshots bounds the layout files kept under <data>/snapshots.
	KeepSnapshots int `mapstructure:"keep_snapshots" yaml:"keep_snapshots" json:"keep_snapshots" validate:"min=1"`
}

type Observer struct {
	PushEveryFrames int     `mapstructure:"push_every_frames" yaml:"push_every_frames" json:"push_every_frames" validate:"min=1"`
	CommandRate     float64 `mapstructure:"command_rate" yaml:"command_rate" json:"command_rate" validate:"gt=0"`
	CommandBurst    int     `mapstructure:"command_burst" yaml:"command_burst" json:"command_burst" validate:"min=1"`
	MaxSessions     int     `mapstructure:"max_sessions" yaml:"max_sessions" json:"max_sessions" validate:"min=1"`
}

func Default() Tuning {
	var t Tuning
	t.Defaults()
	return t
}

// Defaults fills zero values.
func (t *Tuning) Defaults() {
	if t.Grid.Width == 0 {
		t.Grid.Width = 6
	}
	if t.Grid.Height == 0 {
		t.Grid.Height = 6
	}
	if t.Sim.FrameRateHz == 0 {
		t.Sim.FrameRateHz = 20
	}
	if t.Sim.TicksPerSecond == 0 {
		t.Sim.TicksPerSecond = 1
	}
	if t.Sim.MaxElapsed == 0 {
		t.Sim.MaxElapsed = 5
	}
	if t.Persistence.AutosaveSeconds == 0 {
		t.Persistence.AutosaveSeconds = 30
	}
	if t.Persistence.KeepSnapshots == 0 {
		t.Persistence.KeepSnapshots = 20
	}
	if t.Observer.PushEveryFrames == 0 {
		t.Observer.PushEveryFrames = 1
	}
	if t.Observer.CommandRate == 0 {
		t.Observer.CommandRate = 10
	}
	if t.Observer.CommandBurst == 0 {
		t.Observer.CommandBurst = 20
	}
	if t.Observer.MaxSessions == 0 {
		t.Observer.MaxSessions = 64
	}
}

func (t Tuning) EngineConfig() factory.Config {
	return factory.Config{
		Width:          t.Grid.Width,
		Height:         t.Grid.Height,
		FrameRateHz:    t.Sim.FrameRateHz,
		TicksPerSecond: t.Sim.TicksPerSecond,
		MaxElapsed:     t.Sim.MaxElapsed,
	}
}

func (t Tuning) AutosaveInterval() time.Duration {
	return time.Duration(t.Persistence.AutosaveSeconds) * time.Second
}

// Load reads tuning with priority env (FACTORY_*) > file > defaults. A .env file
// in the working directory is loaded first when present. An empty path searches
// for tuning.yaml in . and ./configs and tolerates its absence; an explicit path
// must exist.
func Load(path string) (Tuning, error) {
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tuning")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Tuning{}, fmt.Errorf("read tuning: %w", err)
		}
	}

	var t Tuning
	if err := v.Unmarshal(&t); err != nil {
		return Tuning{}, fmt.Errorf("decode tuning: %w", err)
	}
	t.Defaults()
	if err := Validate(t); err != nil {
		return Tuning{}, err
	}
	return t, nil
}

// registerDefaults makes every key known to viper so env overrides apply even
// when the file does not mention them.
func registerDefaults(v *viper.Viper, d Tuning) {
	v.SetDefault("grid.width", d.Grid.Width)
	v.SetDefault("grid.height", d.Grid.Height)
	v.SetDefault("sim.frame_rate_hz", d.Sim.FrameRateHz)
	v.SetDefault("sim.ticks_per_second", d.Sim.TicksPerSecond)
	v.SetDefault("sim.max_elapsed", d.Sim.MaxElapsed)
	v.SetDefault("persistence.autosave_seconds", d.Persistence.AutosaveSeconds)
	v.SetDefault("persistence.keep_snapshots", d.Persistence.KeepSnapshots)
	v.SetDefault("observer.push_every_frames", d.Observer.PushEveryFrames)
	v.SetDefault("observer.command_rate", d.Observer.CommandRate)
	v.SetDefault("observer.command_burst", d.Observer.CommandBurst)
	v.SetDefault("observer.max_sessions", d.Observer.MaxSessions)
	v.SetDefault("catalog_path", d.CatalogPath)
}

var validate = validator.New()

// Validate checks field bounds and reports every violation at once.
func Validate(t Tuning) error {
	err := validate.Struct(t)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %s (value: %v)", e.Namespace(), e.Tag(), e.Value()))
	}
	return fmt.Errorf("invalid tuning:\n  %s", strings.Join(msgs, "\n  "))
}
