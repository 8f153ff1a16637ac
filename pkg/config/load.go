package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/datawire/dlib/dlog"

	"github.com/telepresenceio/dnsfilter/pkg/errcat"
	"github.com/telepresenceio/dnsfilter/pkg/filelocation"
)

// loadMu serializes loads because parseContext is shared.
var loadMu sync.Mutex

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// cidrv4 only accepts network addresses, and the tunnel address is a host address.
	if err := v.RegisterValidation("ipv4prefix", func(fl validator.FieldLevel) bool {
		_, err := parseIPv4Prefix(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(err)
	}
	return v
}

// LoadConfig merges the config.yml files found in filelocation.AppSystemConfigDirs and
// then filelocation.AppUserConfigDir into the default config, and validates the result.
func LoadConfig(c context.Context) (*Config, error) {
	dirs, err := filelocation.AppSystemConfigDirs(c)
	if err != nil {
		return nil, err
	}
	appDir, err := filelocation.AppUserConfigDir(c)
	if err != nil {
		return nil, err
	}
	dirs = append(dirs, appDir)

	cfg := GetDefaultConfig()
	for _, dir := range dirs {
		if stat, err := os.Stat(dir); err != nil || !stat.IsDir() { // skip unless directory
			continue
		}
		if err = readMerge(c, cfg, filepath.Join(dir, ConfigFile)); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
	}
	if err = Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile merges the given file into the default config and validates the result.
func LoadConfigFile(c context.Context, fileName string) (*Config, error) {
	cfg := GetDefaultConfig()
	if err := readMerge(c, cfg, fileName); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readMerge(c context.Context, cfg *Config, fileName string) error {
	bs, err := os.ReadFile(fileName)
	if err != nil {
		return err
	}
	dlog.Debugf(c, "loading %s", fileName)

	loadMu.Lock()
	defer loadMu.Unlock()
	parseContext = context.WithValue(c, parsedFile{}, fileName)
	defer func() {
		parseContext = nil
	}()
	fileConfig := Config{}
	if err = yaml.Unmarshal(bs, &fileConfig); err != nil {
		return errcat.Config.Newf("file %s: %w", fileName, err)
	}
	cfg.merge(&fileConfig)
	return nil
}

// Validate checks the constraints declared on the config fields.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return errcat.Config.Newf("invalid config: %w", err)
	}
	return nil
}

type configKey struct{}

// WithConfig returns a context with the given Config
func WithConfig(ctx context.Context, config *Config) context.Context {
	return context.WithValue(ctx, configKey{}, config)
}

// GetConfig returns the Config stored in the context, or the default config when
// there is none.
func GetConfig(ctx context.Context) *Config {
	if config, ok := ctx.Value(configKey{}).(*Config); ok {
		return config
	}
	return GetDefaultConfig()
}
