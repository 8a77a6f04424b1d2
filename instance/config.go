// Package instance implements the process scaffold: config load via
// viper, structured logging via logrus, signal handling, poller creation,
// and the main loop (dispatch -> job sweep -> timer check -> end-turn);
// listeners and any child processes are created by the application's hooks.
package instance

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the [main] section of the INI config file described in
// spec.md §6, unmarshaled by viper and validated by go-playground's
// validator.
type Config struct {
	AppName string `mapstructure:"app.name" validate:"required"`

	PollerType    string        `mapstructure:"poller.type"`
	PollerTimeout time.Duration `mapstructure:"poller.timeout"`

	JobTimeout  time.Duration `mapstructure:"timeout.job"`
	PingTimeout time.Duration `mapstructure:"timeout.ping"`

	LogCmdPath   string `mapstructure:"log.cmd.path"`
	LogCmdRotate string `mapstructure:"log.cmd.rotate"`
	LogErrPath   string `mapstructure:"log.err.path"`
	LogErrRotate string `mapstructure:"log.err.rotate"`
	LogTrace     bool   `mapstructure:"log.trace"`

	FlagStage bool `mapstructure:"flag.stage"`

	ChildType  string `mapstructure:"child.type" validate:"omitempty,oneof=single multi"`
	ChildCount int    `mapstructure:"child.count" validate:"gte=0"`

	SvcPort       int `mapstructure:"svc.port"`
	SvcSSLPort    int `mapstructure:"svcssl.port"`
	HTTPPort      int `mapstructure:"http.port"`
	HTTPSPort     int `mapstructure:"https.port"`
	AdminPort     int `mapstructure:"admin.port"`
	AdminSSLPort  int `mapstructure:"adminssl.port"`

	NatsURL string `mapstructure:"nats.url"`
}

// LoadConfig reads an INI file at path (default ./config.ini) into a
// validated Config, the direct replacement for the deleted
// nabbar-golib/config package (see SPEC_FULL.md §2.3 for why it couldn't
// be repaired).
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = "./config.ini"
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	v.AutomaticEnv()

	v.SetDefault("poller.type", "auto")
	v.SetDefault("poller.timeout", 1000)
	v.SetDefault("timeout.job", 30000000)
	v.SetDefault("timeout.ping", 60000000)
	v.SetDefault("child.type", "single")
	v.SetDefault("child.count", 0)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	// Keys such as "app.name" are dotted, so they are copied into a viper
	// that does not split on '.', letting the dotted mapstructure tags
	// match; keys of a [main] section win over the same key elsewhere.
	flat := viper.NewWithOptions(viper.KeyDelimiter("::"))
	for _, k := range v.AllKeys() {
		if !strings.HasPrefix(k, "main.") {
			flat.Set(k, v.Get(k))
		}
	}
	if sec := v.Sub("main"); sec != nil {
		for _, k := range sec.AllKeys() {
			flat.Set(k, sec.Get(k))
		}
	}
	cfg := &Config{}
	if err := flat.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}
