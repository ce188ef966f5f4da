package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEndpoints_Defaults(t *testing.T) {
	cfg := &CloudConfig{ClientID: "id", ClientSecret: "secret"}
	require.NoError(t, LoadEndpoints(cfg))

	assert.Equal(t, "https://api2.arduino.cc/iot/v1/clients/token", cfg.TokenURL)
	assert.Equal(t, "https://api2.arduino.cc/iot", cfg.Audience)
	assert.Equal(t, "https://api2.arduino.cc/iot", cfg.APIURL)
	assert.Equal(t, "wss://wss.iot.arduino.cc:8443/mqtt", cfg.BrokerURL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEndpoints_Overrides(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_URI", "http://localhost:9000/token")
	t.Setenv("MQTT_HOST", "ws://localhost:9001/mqtt")

	cfg := &CloudConfig{}
	require.NoError(t, LoadEndpoints(cfg))

	assert.Equal(t, "http://localhost:9000/token", cfg.TokenURL)
	assert.Equal(t, "ws://localhost:9001/mqtt", cfg.BrokerURL)
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		cfg     *CloudConfig
		wantErr bool
	}{
		"nil":            {cfg: nil, wantErr: true},
		"missing id":     {cfg: &CloudConfig{ClientSecret: "s", TokenURL: "t", APIURL: "a", BrokerURL: "b"}, wantErr: true},
		"missing secret": {cfg: &CloudConfig{ClientID: "i", TokenURL: "t", APIURL: "a", BrokerURL: "b"}, wantErr: true},
		"missing urls":   {cfg: &CloudConfig{ClientID: "i", ClientSecret: "s"}, wantErr: true},
		"valid":          {cfg: &CloudConfig{ClientID: "i", ClientSecret: "s", TokenURL: "t", APIURL: "a", BrokerURL: "b"}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}
