// Package config loads client and rendezvous settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/rudransh-shrivastava/peer-chat/internal/geo"
	"github.com/rudransh-shrivastava/peer-chat/internal/transport/webrtc"
)

// Prefix is prepended to every variable name, e.g. PEERCHAT_LOG_LEVEL.
const Prefix = "PEERCHAT"

var ErrPartialPosition = errors.New("LATITUDE and LONGITUDE must be set together")

var validate = validator.New()

type Client struct {
	RendezvousURL string   `envconfig:"RENDEZVOUS_URL" default:"ws://localhost:9000/peerjs" validate:"required,url"`
	STUNServers   []string `envconfig:"STUN_SERVERS" validate:"dive,startswith=stun:|startswith=stuns:|startswith=turn:|startswith=turns:"`
	CameraDirs    []string `envconfig:"CAMERA_DIRS"`
	Latitude      *float64 `envconfig:"LATITUDE" validate:"omitempty,latitude"`
	Longitude     *float64 `envconfig:"LONGITUDE" validate:"omitempty,longitude"`
	ImageDir      string   `envconfig:"IMAGE_DIR"`
	LogLevel      string   `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn warning error"`
}

// Position returns the configured fixed position, if any.
func (c Client) Position() *geo.Coordinates {
	if c.Latitude == nil || c.Longitude == nil {
		return nil
	}
	return &geo.Coordinates{Lat: *c.Latitude, Lon: *c.Longitude}
}

func (c Client) Validate() error {
	if (c.Latitude == nil) != (c.Longitude == nil) {
		return ErrPartialPosition
	}
	return validate.Struct(c)
}

type Rendezvous struct {
	Addr     string `envconfig:"RENDEZVOUS_ADDR" default:":9000" validate:"required,hostname_port"`
	DBPath   string `envconfig:"RENDEZVOUS_DB"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn warning error"`
}

func (r Rendezvous) Validate() error {
	return validate.Struct(r)
}

// LoadClient reads the client settings. Variables already in the
// environment win over those in envFiles, which default to an optional
// .env in the working directory.
func LoadClient(envFiles ...string) (Client, error) {
	var cfg Client
	if err := load(&cfg, envFiles); err != nil {
		return Client{}, err
	}
	if len(cfg.STUNServers) == 0 {
		cfg.STUNServers = slices.Clone(webrtc.DefaultSTUNServers)
	}
	if err := cfg.Validate(); err != nil {
		return Client{}, fmt.Errorf("invalid client config: %w", err)
	}
	return cfg, nil
}

func LoadRendezvous(envFiles ...string) (Rendezvous, error) {
	var cfg Rendezvous
	if err := load(&cfg, envFiles); err != nil {
		return Rendezvous{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Rendezvous{}, fmt.Errorf("invalid rendezvous config: %w", err)
	}
	return cfg, nil
}

func load(spec any, envFiles []string) error {
	if len(envFiles) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	} else if err := godotenv.Load(envFiles...); err != nil {
		return fmt.Errorf("failed to load %v: %w", envFiles, err)
	}

	if err := envconfig.Process(Prefix, spec); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return nil
}
