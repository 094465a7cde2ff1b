package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Option func(v *viper.Viper) error

// WithEnvAlias lets the env variables override key, in addition to the variable derived from key.
func WithEnvAlias(key string, envs ...string) Option {
	return func(v *viper.Viper) error {
		auto := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		return v.BindEnv(append([]string{key, auto}, envs...)...)
	}
}

// Load config from file into the config struct, config must be a pointer to the config struct.
// The values already in config are defaults. The file is optional: an empty or missing file
// leaves the defaults and the env variables.
func Load(file string, config any, opts ...Option) error {
	v := viper.New()
	m := make(map[string]any)

	if err := mapstructure.Decode(config, &m); err != nil {
		return fmt.Errorf("mapstructure: %v", err)
	}

	if err := v.MergeConfigMap(m); err != nil {
		return fmt.Errorf("merge config map: %v", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return fmt.Errorf("apply option: %v", err)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read config from file %s: %v", file, err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %v", err)
	}

	return nil
}
