package secret

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

const keychainService = "tablexport"

// errItemNotFound is the exit status of `security` for a missing item.
const errItemNotFound = 44

// KeychainStore reads connection passwords from the macOS login keychain
// through the `security` tool. The keychain account is the secret key, so
// `security add-generic-password -s tablexport -a password:warehouse -w`
// provisions the password of the "warehouse" connection.
//
// On other platforms every lookup misses.
type KeychainStore struct {
	run func(args ...string) ([]byte, error)
}

// NewKeychainStore creates a KeychainStore backed by the `security` binary.
func NewKeychainStore() *KeychainStore {
	if runtime.GOOS != "darwin" {
		return &KeychainStore{}
	}
	return &KeychainStore{run: func(args ...string) ([]byte, error) {
		return exec.Command("security", args...).Output()
	}}
}

func (k *KeychainStore) Set(key string, value []byte) error {
	if k.run == nil {
		return fmt.Errorf("keychain set %s: keychain unavailable on %s", key, runtime.GOOS)
	}
	// -U replaces an existing item for the same account.
	if _, err := k.run("add-generic-password", "-U", "-s", keychainService, "-a", key, "-w", string(value)); err != nil {
		return fmt.Errorf("keychain set %s: %w", key, commandError(err))
	}
	return nil
}

// Get returns nil, nil when the item does not exist.
func (k *KeychainStore) Get(key string) ([]byte, error) {
	if k.run == nil {
		return nil, nil
	}
	out, err := k.run("find-generic-password", "-s", keychainService, "-a", key, "-w")
	if err != nil {
		if exitCode(err) == errItemNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("keychain get %s: %w", key, commandError(err))
	}
	return []byte(strings.TrimRight(string(out), "\n")), nil
}

func (k *KeychainStore) Delete(key string) error {
	if k.run == nil {
		return nil
	}
	if _, err := k.run("delete-generic-password", "-s", keychainService, "-a", key); err != nil {
		if exitCode(err) == errItemNotFound {
			return nil
		}
		return fmt.Errorf("keychain delete %s: %w", key, commandError(err))
	}
	return nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// commandError folds the tool's stderr into err when there is any.
func commandError(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return fmt.Errorf("%s: %w", strings.TrimSpace(string(exitErr.Stderr)), err)
	}
	return err
}
