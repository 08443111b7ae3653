package secret

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

const keychainService = "docmodel"

// KeychainStore implements SecretStore using the macOS Keychain
// via the `security` CLI tool.
type KeychainStore struct{}

func NewKeychainStore() *KeychainStore {
	return &KeychainStore{}
}

// KeychainAvailable reports whether the `security` tool can be used.
func KeychainAvailable() bool {
	if runtime.GOOS != "darwin" {
		return false
	}
	_, err := exec.LookPath("security")
	return err == nil
}

// Set stores a secret, replacing any previous value.
func (k *KeychainStore) Set(key string, value []byte) error {
	k.Delete(key)

	cmd := exec.Command("security", "add-generic-password",
		"-a", key,
		"-s", keychainService,
		"-w", string(value),
		"-U",
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("keychain set: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Get returns nil, nil when the item does not exist.
func (k *KeychainStore) Get(key string) ([]byte, error) {
	cmd := exec.Command("security", "find-generic-password",
		"-a", key,
		"-s", keychainService,
		"-w",
	)
	out, err := cmd.Output()
	if err != nil {
		// exit code 44: item not found
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 44 {
			return nil, nil
		}
		return nil, fmt.Errorf("keychain get: %w", err)
	}
	return []byte(strings.TrimSpace(string(out))), nil
}

func (k *KeychainStore) Delete(key string) error {
	cmd := exec.Command("security", "delete-generic-password",
		"-a", key,
		"-s", keychainService,
	)
	cmd.Run() // item may not exist
	return nil
}
