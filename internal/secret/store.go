package secret

// SecretStore provides a pluggable interface for storing sensitive data
// such as database passwords.
type SecretStore interface {
	// Set stores a secret value under the given key.
	Set(key string, value []byte) error

	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)

	// Delete removes the secret for the given key.
	Delete(key string) error
}

// ChainStore reads from each store in turn and returns the first hit.
// Writes go to the first store only.
type ChainStore []SecretStore

func (c ChainStore) Set(key string, value []byte) error {
	if len(c) == 0 {
		return nil
	}
	return c[0].Set(key, value)
}

func (c ChainStore) Get(key string) ([]byte, error) {
	for _, s := range c {
		v, err := s.Get(key)
		if err != nil {
			return nil, err
		}
		if len(v) > 0 {
			return v, nil
		}
	}
	return nil, nil
}

func (c ChainStore) Delete(key string) error {
	for _, s := range c {
		if err := s.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// PasswordKey is the key under which a connection's password is stored.
func PasswordKey(connection string) string {
	return "password:" + connection
}
