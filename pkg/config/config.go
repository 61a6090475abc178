package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

const defaultEnvFile = ".env"

var (
	envFlag     string
	envFlagOnce sync.Once
	loadMu      sync.Mutex
)

// Validator is implemented by config structs that check themselves after loading.
type Validator interface {
	Validate() error
}

func MustNew[T any](prefix string) *T {
	conf, err := New[T](prefix)
	if err != nil {
		panic(err)
	}
	return conf
}

// New loads the -env file (./.env when the flag is unset) into the process
// env, then decodes the variables under prefix into T.
func New[T any](prefix string) (*T, error) {
	if err := loadEnvFile(envFilePath()); err != nil {
		return nil, err
	}

	section := sectionName(prefix)
	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, fmt.Errorf("config %s: %w", section, err)
	}
	if v, ok := any(&conf).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("config %s: %w", section, err)
		}
	}
	return &conf, nil
}

func sectionName(prefix string) string {
	if p := strings.TrimSpace(prefix); p != "" {
		return strings.ToLower(p)
	}
	return "app"
}

// envFilePath is the -env flag value, or "" when it was not given.
func envFilePath() string {
	envFlagOnce.Do(func() {
		if flag.Lookup("env") == nil {
			flag.StringVar(&envFlag, "env", "", "path to .env file")
		}
		if !flag.Parsed() {
			flag.Parse()
		}
	})
	return strings.TrimSpace(envFlag)
}

// loadEnvFile requires an explicit path to exist; the default ./.env is optional.
func loadEnvFile(path string) error {
	if path != "" {
		if err := applyEnvFile(path); err != nil {
			return fmt.Errorf("env file %s: %w", path, err)
		}
		return nil
	}

	info, err := os.Stat(defaultEnvFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("env file %s: %w", defaultEnvFile, err)
	case info.IsDir():
		return nil
	}
	if err := applyEnvFile(defaultEnvFile); err != nil {
		return fmt.Errorf("env file %s: %w", defaultEnvFile, err)
	}
	return nil
}

// applyEnvFile never overrides variables already present in the process env.
func applyEnvFile(path string) error {
	loadMu.Lock()
	defer loadMu.Unlock()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	for key, val := range v.AllSettings() {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, fmt.Sprint(val)); err != nil {
			return err
		}
	}
	return nil
}
