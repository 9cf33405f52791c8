package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultEnvFile is the dotenv file loaded from the working directory.
const DefaultEnvFile = ".env"

// Environment variable names.
const (
	// EnvCredentials holds a JSON array of {"bearer_token","ct0","auth_token"}.
	EnvCredentials = "XSPIDER_CREDENTIALS"

	// EnvProxyURLs holds a JSON array of proxy URLs, or a comma separated list.
	EnvProxyURLs = "XSPIDER_PROXY_URLS"
)

// LoadDotEnv loads variables from the dotenv file at path into the process
// environment. A missing file is not an error. Variables already set in the
// environment win over the file.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// ApplyEnv appends credentials and proxies found in the environment to cfg.
func ApplyEnv(cfg *Config) error {
	creds, err := CredentialsFromEnv()
	if err != nil {
		return err
	}
	cfg.Credentials = append(cfg.Credentials, creds...)

	proxies, err := ProxyURLsFromEnv()
	if err != nil {
		return err
	}
	cfg.ProxyURLs = append(cfg.ProxyURLs, proxies...)
	return nil
}

// CredentialsFromEnv parses EnvCredentials. An unset variable yields nil.
func CredentialsFromEnv() ([]Credential, error) {
	raw := strings.TrimSpace(os.Getenv(EnvCredentials))
	if raw == "" {
		return nil, nil
	}

	var creds []Credential
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		// Do not echo raw: it holds secrets.
		return nil, fmt.Errorf("failed to parse %s as a JSON array: %w", EnvCredentials, err)
	}
	return creds, nil
}

// ProxyURLsFromEnv parses EnvProxyURLs. Both a JSON array and a comma
// separated list are accepted.
func ProxyURLsFromEnv() ([]string, error) {
	raw := strings.TrimSpace(os.Getenv(EnvProxyURLs))
	if raw == "" {
		return nil, nil
	}

	if strings.HasPrefix(raw, "[") {
		var urls []string
		if err := json.Unmarshal([]byte(raw), &urls); err != nil {
			return nil, fmt.Errorf("failed to parse %s as a JSON array: %w", EnvProxyURLs, err)
		}
		return urls, nil
	}

	var urls []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			urls = append(urls, part)
		}
	}
	return urls, nil
}
