package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	pkgerrors "github.com/pkg/errors"
)

// Environment variables that take precedence over the config file.
const (
	EnvSerials     = "STATSVAL_SERIALS"
	EnvADB         = "STATSVAL_ADB"
	EnvInfluxToken = "STATSVAL_INFLUX_TOKEN"
)

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored and existing variables are kept.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return pkgerrors.Wrapf(err, "failed to load %s", p)
		}
	}
	return nil
}

func envOverrides() *RawFileConfig {
	c := &RawFileConfig{}
	if v := strings.TrimSpace(os.Getenv(EnvSerials)); v != "" {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				c.Serials = append(c.Serials, s)
			}
		}
	}
	if v := os.Getenv(EnvADB); v != "" {
		c.ADBPath = &v
	}
	if v := os.Getenv(EnvInfluxToken); v != "" {
		c.Influx = &Influx{Token: v}
	}
	return c
}
