package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Secret names in the secrets file.
const (
	SecretAPIToken      = "api_token"
	SecretOpenRouterKey = "openrouter_api_key"
	SecretPostgresDSN   = "postgres_dsn"
)

// ErrSecretNotFound is returned for a secret the file does not hold.
var ErrSecretNotFound = errors.New("secret not found")

// SecretsFile is a 0600 JSON object of named secrets.
type SecretsFile struct {
	path string
}

func newSecretsFile(path string) *SecretsFile {
	return &SecretsFile{path: path}
}

// DefaultSecrets returns the secrets file in the recordar data directory.
func DefaultSecrets() *SecretsFile {
	return newSecretsFile(secretsFilePath())
}

func (s *SecretsFile) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	secrets := map[string]string{}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

func (s *SecretsFile) Get(name string) (string, error) {
	secrets, err := s.read()
	if err != nil {
		return "", err
	}
	v, ok := secrets[name]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return v, nil
}

func (s *SecretsFile) Set(name, value string) error {
	secrets, err := s.read()
	if err != nil {
		return err
	}
	secrets[name] = value
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, out, 0o600)
}

// GetAPIToken returns the bearer token protecting the HTTP API.
func GetAPIToken(s *SecretsFile) (string, error) {
	return s.Get(SecretAPIToken)
}

// EnsureAPIToken returns the stored API token, generating and storing a new
// one on first use.
func EnsureAPIToken(s *SecretsFile) (string, error) {
	tok, err := s.Get(SecretAPIToken)
	if err == nil {
		return tok, nil
	}
	if !errors.Is(err, ErrSecretNotFound) {
		return "", err
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api token: %w", err)
	}
	tok = hex.EncodeToString(buf)
	if err := s.Set(SecretAPIToken, tok); err != nil {
		return "", fmt.Errorf("storing api token: %w", err)
	}
	return tok, nil
}
