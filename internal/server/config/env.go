package config

import (
	"errors"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/dmitrijs2005/passvault/internal/flagx"
	"github.com/joho/godotenv"
)

// loadEnvFile copies variables from the dotenv file (see flagx.EnvFileFlags)
// into the process environment. Variables that are already set win. A
// missing file is not an error.
func loadEnvFile() {
	err := godotenv.Load(flagx.EnvFileFlags())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}
}

// parseEnv overlays PASSVAULT_* environment variables. Unset variables leave
// the current value untouched.
func parseEnv(cfg *Config) {
	if err := env.Parse(cfg); err != nil {
		panic(err)
	}
}
