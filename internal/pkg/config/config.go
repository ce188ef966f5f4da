package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

var ErrConfig = errors.New("invalid connection config")

type Config struct {
	CloudCfg          *CloudConfig
	HomeKitCfg        *HomeKitConfig
	DatabaseURL       string
	MigrationsFolder  string
	Retention         time.Duration
	DiscoverySchedule string
	StatusAddr        string
	StatusToken       string
	LogLevel          string
}

// CloudConfig is everything the connection needs. Endpoint fields are
// filled from the environment by LoadEndpoints.
type CloudConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string `env:"ACCESS_TOKEN_URI" envDefault:"https://api2.arduino.cc/iot/v1/clients/token"`
	Audience     string `env:"ACCESS_TOKEN_AUDIENCE" envDefault:"https://api2.arduino.cc/iot"`
	APIURL       string `env:"API_URL" envDefault:"https://api2.arduino.cc/iot"`
	BrokerURL    string `env:"MQTT_HOST" envDefault:"wss://wss.iot.arduino.cc:8443/mqtt"`
}

type HomeKitConfig struct {
	BridgeName  string
	Pin         string
	StoragePath string
	Addr        string
}

// LoadEndpoints populates the endpoint overrides of cfg from the environment.
func LoadEndpoints(cfg *CloudConfig) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return nil
}

func (c *CloudConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: missing cloud config", ErrConfig)
	}
	if c.ClientID == "" {
		return fmt.Errorf("%w: client id is required", ErrConfig)
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("%w: client secret is required", ErrConfig)
	}
	if c.TokenURL == "" || c.APIURL == "" || c.BrokerURL == "" {
		return fmt.Errorf("%w: endpoints are not configured", ErrConfig)
	}
	return nil
}
