// Package config layers the config file, L4S_* environment variables and
// command line flags into the settings of one invocation.
package config

import (
	"L4STestbed/api"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	KeySide              = "side"
	KeyUplink            = "uplink"
	KeyLockDir           = "lock_dir"
	KeyNetworkRestartCmd = "network_restart_cmd"
	KeyLogFormat         = "log_format"
	KeyVerbose           = "verbose"
	KeyCommandTimeout    = "command_timeout"

	EnvPrefix = "L4S"
	FileName  = "l4stestbed"
)

// Config holds the settings that are not experiment parameters.
type Config struct {
	Side              api.SideID
	Uplink            string
	LockDir           string
	NetworkRestartCmd string
	LogFormat         string
	Verbose           bool
	CommandTimeout    time.Duration
}

// New returns a viper instance with defaults, env binding and the config
// file search path set up. An explicit file overrides the search path.
func New(file string) *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyUplink, api.DefaultUplink)
	v.SetDefault(KeyLockDir, "/run/l4stestbed")
	v.SetDefault(KeyNetworkRestartCmd, "systemctl restart NetworkManager")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyCommandTimeout, 60*time.Second)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/l4stestbed")
		v.AddConfigPath(".")
	}
	return v
}

// Read loads the config file. A missing file is fine unless it was named
// explicitly.
func Read(v *viper.Viper, explicit bool) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if !explicit && errors.As(err, &notFound) {
		return nil
	}
	return fmt.Errorf("failed to read config: %v", err)
}

// Load extracts a Config from v.
func Load(v *viper.Viper) (*Config, error) {
	c := &Config{
		Uplink:            v.GetString(KeyUplink),
		LockDir:           v.GetString(KeyLockDir),
		NetworkRestartCmd: v.GetString(KeyNetworkRestartCmd),
		LogFormat:         v.GetString(KeyLogFormat),
		Verbose:           v.GetBool(KeyVerbose),
		CommandTimeout:    v.GetDuration(KeyCommandTimeout),
	}
	raw := v.GetString(KeySide)
	if raw == "" {
		return nil, fmt.Errorf("no side configured: pass --side, set L4S_SIDE or %s in the config file", KeySide)
	}
	side, err := api.ParseSideID(raw)
	if err != nil {
		return nil, err
	}
	c.Side = side
	if c.LockDir == "" {
		return nil, fmt.Errorf("%s must not be empty", KeyLockDir)
	}
	if c.CommandTimeout < 0 {
		return nil, fmt.Errorf("%s must not be negative", KeyCommandTimeout)
	}
	return c, nil
}

// ResolveSide returns the address plan of the configured side.
func (c *Config) ResolveSide() (api.Side, error) {
	return api.NewSide(c.Side, c.Uplink)
}
