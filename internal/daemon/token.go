package daemon

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const tokenBytes = 32

// LoadOrCreateToken returns the shared secret stored at tokenPath, creating
// it on first use. The file is written through a temp file and rename so a
// concurrently starting client never reads a half-written token.
func LoadOrCreateToken(tokenPath string) (string, error) {
	if strings.TrimSpace(tokenPath) == "" {
		return "", errors.New("token path is required")
	}
	token, err := readToken(tokenPath)
	switch {
	case err == nil && token != "":
		_ = os.Chmod(tokenPath, 0o600)
		return token, nil
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("read token: %w", err)
	}

	token, err = generateToken()
	if err != nil {
		return "", err
	}
	if err := writeToken(tokenPath, token); err != nil {
		return "", err
	}
	return token, nil
}

func readToken(tokenPath string) (string, error) {
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func writeToken(tokenPath, token string) error {
	dir := filepath.Dir(tokenPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod token: %w", err)
	}
	if _, err := tmp.WriteString(token + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("write token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	if err := os.Rename(tmpPath, tokenPath); err != nil {
		return fmt.Errorf("install token: %w", err)
	}
	return nil
}

// generateToken uses the URL-safe alphabet so the token can be pasted into
// headers and query strings without escaping.
func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
