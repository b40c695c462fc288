package config

import (
	"os"

	"github.com/joho/godotenv"
)

var dotEnvFiles = []string{".env.local", ".env"}

func LoadFromEnv() (Config, error) {
	if err := loadDotEnv(dotEnvFiles...); err != nil {
		return Config{}, err
	}
	return Load(FromEnviron())
}

// loadDotEnv never overrides variables that are already set, so earlier
// files take precedence over later ones.
func loadDotEnv(files ...string) error {
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if err := godotenv.Load(file); err != nil {
			return err
		}
	}
	return nil
}
