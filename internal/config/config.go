package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Settings is process wide and read-only after Load
type Settings struct {
	Directory string `yaml:"directory" validate:"required"` // document root
	Host      string `yaml:"host" validate:"required"`
	Port      int    `yaml:"port" validate:"min=0,max=65535"` // 0 picks a free port
	Daemonize bool   `yaml:"daemonize"`

	// engine
	Workers        int           `yaml:"workers" validate:"min=1,max=1024"`
	MaxEvents      int           `yaml:"max_events" validate:"min=1"`
	Backlog        int           `yaml:"backlog" validate:"min=1"`
	ReadBufferSize int           `yaml:"read_buffer_size" validate:"min=16"`
	MaxHeaderBytes int           `yaml:"max_header_bytes" validate:"min=0"` // 0 means unlimited
	MaxReadRetries int           `yaml:"max_read_retries" validate:"min=0"`
	ReadTimeout    time.Duration `yaml:"read_timeout" validate:"min=0"`  // 0 means wait forever
	WriteTimeout   time.Duration `yaml:"write_timeout" validate:"min=0"` // 0 means wait forever

	// url prefix -> directory, "/" is always the document root
	Mounts map[string]string `yaml:"mounts" validate:"dive,keys,startswith=/,endkeys,required"`

	LogLevel  string `yaml:"log_level" validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFormat string `yaml:"log_format" validate:"oneof=text json"`

	// optional status endpoint, empty disables it
	AdminAddr string `yaml:"admin_addr" validate:"omitempty,hostname_port"`
}

// Default returns the settings the server runs with when nothing is configured
func Default() *Settings {
	return &Settings{
		Directory: "/tmp/www/htdocs",
		Host:      "0.0.0.0",
		Port:      15282,
		Daemonize: true,

		Workers:        3,
		MaxEvents:      64,
		Backlog:        64,
		ReadBufferSize: 1024,
		MaxHeaderBytes: 1<<16 - 1,
		MaxReadRetries: 3,

		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads settings: defaults, then the yaml file if path is not empty, then environment
func Load(path string) (*Settings, error) {
	s := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, s); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := s.applyEnv(); err != nil {
		return nil, err
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return s, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its validate tag
func (s *Settings) Validate() error {
	err := validate.Struct(s)

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		errs := make([]error, 0, len(verrs))
		for _, fe := range verrs {
			errs = append(errs, fmt.Errorf("%s: invalid value %v (%s)", fe.Namespace(), fe.Value(), fe.Tag()))
		}
		return errors.Join(errs...)
	}
	return err
}

// Address is host:port for the listening socket
func (s *Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s *Settings) applyEnv() error {
	s.Directory = getEnvOrDefault("STATICD_DIRECTORY", s.Directory)
	s.Host = getEnvOrDefault("STATICD_HOST", s.Host)
	s.LogLevel = getEnvOrDefault("STATICD_LOG_LEVEL", s.LogLevel)

	var err error
	if s.Port, err = getEnvAsIntOrDefault("STATICD_PORT", s.Port); err != nil {
		return err
	}
	if s.Workers, err = getEnvAsIntOrDefault("STATICD_WORKERS", s.Workers); err != nil {
		return err
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
