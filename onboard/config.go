package onboard

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/CodedInternet/gosbrick/onboard/ble"
	"github.com/CodedInternet/gosbrick/onboard/hardware"
	"gopkg.in/yaml.v2"
)

const (
	CONFIG_VERSION = 1
	SCAN_TIMEOUT   = 30 * time.Second
)

type SBrickConfig struct {
	Version         int                   `yaml:"version"`
	Name            string                `yaml:"name"`
	Address         string                `yaml:"address"`
	Firmware        string                `yaml:"firmware"` // semver constraint
	ScanTimeout     time.Duration         `yaml:"scan_timeout"`
	Handles         hardware.Handles      `yaml:"handles"`
	Characteristics map[ble.Handle]string `yaml:"characteristics"`
	KeepAlive       KeepAliveConfig       `yaml:"keepalive"`
	Mixer           TankMixer             `yaml:"mixer"`
}

type KeepAliveConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Max         time.Duration `yaml:"max"`
	MaxFailures *int          `yaml:"max_failures"` // 0 never gives up
	SafeStop    *bool         `yaml:"safe_stop"`
}

// ParseConfig reads a yaml device description and fills in defaults for
// everything left out.
func ParseConfig(raw []byte) (config SBrickConfig, err error) {
	config.Mixer = DefaultMixer()
	err = yaml.Unmarshal(raw, &config)
	if err != nil {
		return
	}

	if config.Version == 0 {
		config.Version = CONFIG_VERSION
	}
	if config.Version != CONFIG_VERSION {
		return config, fmt.Errorf("unable to work with config version %d", config.Version)
	}

	config.applyDefaults()
	if err = config.KeepAlive.validate(); err != nil {
		return
	}
	return config, config.Mixer.validate()
}

func LoadConfig(filename string) (config SBrickConfig, err error) {
	raw, err := ioutil.ReadFile(filename)
	if err != nil {
		return config, fmt.Errorf("unable to read config: %w", err)
	}
	return ParseConfig(raw)
}

func (c *SBrickConfig) applyDefaults() {
	if c.Name == "" {
		c.Name = "sbrick"
	}
	if c.ScanTimeout == 0 {
		c.ScanTimeout = SCAN_TIMEOUT
	}

	defaults := hardware.DefaultHandles()
	if c.Handles.QuickDrive == 0 {
		c.Handles.QuickDrive = defaults.QuickDrive
	}
	if c.Handles.RemoteControl == 0 {
		c.Handles.RemoteControl = defaults.RemoteControl
	}
	if c.Handles.Firmware == 0 {
		c.Handles.Firmware = defaults.Firmware
	}

	if c.Characteristics == nil {
		c.Characteristics = make(map[ble.Handle]string)
	}
	for handle, uuid := range ble.DefaultCharacteristics() {
		if _, ok := c.Characteristics[handle]; !ok {
			c.Characteristics[handle] = uuid
		}
	}

	if c.KeepAlive.Interval == 0 {
		c.KeepAlive.Interval = hardware.KEEP_ALIVE_INTERVAL
	}
	if c.KeepAlive.Max == 0 {
		c.KeepAlive.Max = hardware.KEEP_ALIVE_MAX_DURATION
	}
	if c.KeepAlive.MaxFailures == nil {
		maxFailures := hardware.KEEP_ALIVE_MAX_FAILURES
		c.KeepAlive.MaxFailures = &maxFailures
	}
	if c.KeepAlive.SafeStop == nil {
		safeStop := true
		c.KeepAlive.SafeStop = &safeStop
	}
}

func (c KeepAliveConfig) validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("keepalive interval must be positive, got %s", c.Interval)
	}
	if c.Max <= 0 {
		return fmt.Errorf("keepalive max must be positive, got %s", c.Max)
	}
	if c.MaxFailures != nil && *c.MaxFailures < 0 {
		return fmt.Errorf("keepalive max_failures can not be negative, got %d", *c.MaxFailures)
	}
	return nil
}

// Apply copies the keep-alive settings onto a scheduler.
func (c KeepAliveConfig) Apply(ka *hardware.KeepAlive) {
	ka.Interval = c.Interval
	ka.MaxDuration = c.Max
	if c.MaxFailures != nil {
		ka.MaxFailures = *c.MaxFailures
	}
	if c.SafeStop != nil {
		ka.SafeStop = *c.SafeStop
	}
}
