package secret

import (
	"os"
	"strings"
)

// EnvPrefix prefixes every environment variable EnvStore reads.
const EnvPrefix = "TABLEXPORT_"

// EnvStore implements SecretStore over process environment variables.
// The key "password:warehouse" maps to TABLEXPORT_PASSWORD_WAREHOUSE.
type EnvStore struct{}

// NewEnvStore creates a new EnvStore.
func NewEnvStore() *EnvStore {
	return &EnvStore{}
}

// EnvVar returns the variable name used for key.
func EnvVar(key string) string {
	upper := strings.ToUpper(key)
	return EnvPrefix + strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, upper)
}

func (e *EnvStore) Set(key string, value []byte) error {
	return os.Setenv(EnvVar(key), string(value))
}

func (e *EnvStore) Get(key string) ([]byte, error) {
	v, ok := os.LookupEnv(EnvVar(key))
	if !ok {
		return nil, nil
	}
	return []byte(v), nil
}

func (e *EnvStore) Delete(key string) error {
	return os.Unsetenv(EnvVar(key))
}
