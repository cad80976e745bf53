package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const defaultSecretsDir = "/run/secrets"

// ReadSecret читает Docker secret из файла.
// Каталог можно переопределить через SECRETS_DIR. При SECRETS_FROM_ENV=true
// (только для локальной разработки) секрет берется из переменной окружения с именем секрета в верхнем регистре.
func ReadSecret(secretName string) (string, error) {
	if strings.EqualFold(os.Getenv("SECRETS_FROM_ENV"), "true") {
		if v := strings.TrimSpace(os.Getenv(strings.ToUpper(secretName))); v != "" {
			return v, nil
		}
	}

	dir := os.Getenv("SECRETS_DIR")
	if dir == "" {
		dir = defaultSecretsDir
	}
	filePath := filepath.Join(dir, secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}
