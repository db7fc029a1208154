/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"jinr.ru/greenlab/go-router/pkg/assembler"
	"jinr.ru/greenlab/go-router/pkg/router"
)

type RouterConfig struct {
	LengthBits    int    `yaml:"lengthBits"`
	Capacity      []int  `yaml:"capacity"`
	TimeoutCycles int    `yaml:"timeoutCycles"`
	StrobePolicy  string `yaml:"strobePolicy"`
}

// SerialConfig describes an optional serial line feeding the router.
// An empty Path disables serial ingest.
type SerialConfig struct {
	Path     string `yaml:"path,omitempty"`
	BaudRate int    `yaml:"baudRate"`
	DataBits int    `yaml:"dataBits"`
	StopBits int    `yaml:"stopBits"`
	Parity   string `yaml:"parity"`
}

type Config struct {
	Router      *RouterConfig `yaml:"router"`
	Serial      *SerialConfig `yaml:"serial"`
	IP          string        `yaml:"ip"`
	ApiPort     int           `yaml:"apiPort"`
	UdpPort     int           `yaml:"udpPort"`
	CyclePeriod time.Duration `yaml:"cyclePeriod"`
	InputQueue  int           `yaml:"inputQueue"`
	DBPath      string        `yaml:"dbPath"`
	LogLevel    string        `yaml:"logLevel"`
	filepath    string
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return filepath.Join(home, ConfigDir, ConfigFile)
}

func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return filepath.Join(home, ConfigDir, DBFile)
}

func NewDefaultConfig() *Config {
	return &Config{
		Router: &RouterConfig{
			LengthBits:    DefaultLengthBits,
			Capacity:      []int{DefaultCapacity, DefaultCapacity, DefaultCapacity},
			TimeoutCycles: DefaultTimeoutCycles,
			StrobePolicy:  DefaultStrobePolicy,
		},
		Serial: &SerialConfig{
			BaudRate: DefaultSerialBaudRate,
			DataBits: DefaultSerialDataBits,
			StopBits: DefaultSerialStopBits,
			Parity:   DefaultSerialParity,
		},
		IP:          DefaultIP,
		ApiPort:     DefaultApiPort,
		UdpPort:     DefaultUdpPort,
		CyclePeriod: DefaultCyclePeriodMs * time.Millisecond,
		InputQueue:  DefaultInputQueue,
		DBPath:      DefaultDBPath(),
		LogLevel:    DefaultLogLevel,
		filepath:    DefaultConfigPath(),
	}
}

// Path returns the file the config is loaded from and persisted to
func (c *Config) Path() string {
	return c.filepath
}

func (c *Config) SetPath(path string) {
	c.filepath = path
}

func (c *Config) Persist(overwrite bool) error {
	if _, err := os.Stat(c.filepath); err == nil && !overwrite {
		return ErrConfigFileExists{Path: c.filepath}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.filepath)
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return err
	}

	return ioutil.WriteFile(c.filepath, data, 0644)
}

// Load reads the config file over the current values. A missing file is not an error,
// the defaults stay in place.
func (c *Config) Load() error {
	data, err := ioutil.ReadFile(c.filepath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) Validate() error {
	if c.Router == nil {
		return ErrInvalidConfig{What: "router section is missing"}
	}
	if _, err := c.RouterSettings(); err != nil {
		return err
	}
	if c.CyclePeriod <= 0 {
		return ErrInvalidConfig{What: fmt.Sprintf("cyclePeriod must be positive, got %s", c.CyclePeriod)}
	}
	if c.InputQueue <= 0 {
		return ErrInvalidConfig{What: fmt.Sprintf("inputQueue must be positive, got %d", c.InputQueue)}
	}
	if c.ApiPort <= 0 || c.ApiPort > 65535 {
		return ErrInvalidConfig{What: fmt.Sprintf("apiPort out of range: %d", c.ApiPort)}
	}
	if c.UdpPort < 0 || c.UdpPort > 65535 {
		return ErrInvalidConfig{What: fmt.Sprintf("udpPort out of range: %d", c.UdpPort)}
	}
	return nil
}

// RouterSettings converts the router section into the router policy constants
func (c *Config) RouterSettings() (router.Config, error) {
	rc := router.DefaultConfig()
	if c.Router == nil {
		return rc, nil
	}
	if c.Router.LengthBits != 4 && c.Router.LengthBits != 6 {
		return rc, ErrInvalidConfig{What: fmt.Sprintf("lengthBits must be 4 or 6, got %d", c.Router.LengthBits)}
	}
	rc.LengthBits = c.Router.LengthBits

	switch len(c.Router.Capacity) {
	case 1:
		for ch := range rc.Capacity {
			rc.Capacity[ch] = c.Router.Capacity[0]
		}
	case router.NumChannels:
		copy(rc.Capacity[:], c.Router.Capacity)
	default:
		return rc, ErrInvalidConfig{What: fmt.Sprintf("capacity needs 1 or %d values, got %d",
			router.NumChannels, len(c.Router.Capacity))}
	}
	for ch, capacity := range rc.Capacity {
		if capacity <= 0 {
			return rc, ErrInvalidConfig{What: fmt.Sprintf("capacity of channel %d must be positive", ch)}
		}
	}

	if c.Router.TimeoutCycles < 0 {
		return rc, ErrInvalidConfig{What: fmt.Sprintf("timeoutCycles must not be negative, got %d", c.Router.TimeoutCycles)}
	}
	rc.TimeoutCycles = c.Router.TimeoutCycles

	policy, err := assembler.ParseStrobePolicy(c.Router.StrobePolicy)
	if err != nil {
		return rc, ErrInvalidConfig{What: err.Error()}
	}
	rc.StrobePolicy = policy
	return rc, nil
}

// SerialEnabled reports whether a serial port is configured
func (c *Config) SerialEnabled() bool {
	return c.Serial != nil && c.Serial.Path != ""
}
