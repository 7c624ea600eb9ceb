package secret_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablexport/internal/secret"
)

func TestEnvVar(t *testing.T) {
	assert.Equal(t, "TABLEXPORT_PASSWORD_WAREHOUSE", secret.EnvVar(secret.PasswordKey("warehouse")))
	assert.Equal(t, "TABLEXPORT_PASSWORD_SALES_EU_1", secret.EnvVar(secret.PasswordKey("sales-eu.1")))
}

func TestEnvStore_Get(t *testing.T) {
	t.Setenv("TABLEXPORT_PASSWORD_PG", "s3cret")
	store := secret.NewEnvStore()

	v, err := store.Get(secret.PasswordKey("pg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("s3cret"), v)

	v, err = store.Get(secret.PasswordKey("missing"))
	require.NoError(t, err)
	assert.Empty(t, v)
}

type mapStore map[string][]byte

func (m mapStore) Set(key string, value []byte) error { m[key] = value; return nil }
func (m mapStore) Get(key string) ([]byte, error) { return m[key], nil }
func (m mapStore) Delete(key string) error { delete(m, key); return nil }

func TestChainStore_FirstHitWins(t *testing.T) {
	first := mapStore{}
	second := mapStore{"k": []byte("from-second")}
	chain := secret.ChainStore{first, second}

	v, err := chain.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "from-second", string(v))

	require.NoError(t, chain.Set("k", []byte("from-first")))
	v, err = chain.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "from-first", string(v))

	require.NoError(t, chain.Delete("k"))
	v, err = chain.Get("k")
	require.NoError(t, err)
	assert.Empty(t, v)
}
