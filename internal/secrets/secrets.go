// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets reads credentials from a directory of plain-text files,
// one secret per file. The filename is the key and the trimmed contents are
// the value. Environment variables override files.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
)

// DefaultDir is the secrets directory relative to the working directory.
const DefaultDir = ".secrets"

// CoreAPIKey names the CORE API key. The environment override is
// PAPER_CRAWLER_CORE_API_KEY.
const CoreAPIKey = "core-api-key"

// Secrets holds loaded secret values by key.
type Secrets map[string]string

// Load reads every file in dir. A missing directory is not an error and
// yields no secrets. Unreadable files are logged and skipped.
func Load(dir string, logger arbor.ILogger) (Secrets, error) {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Secrets{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	s := make(Secrets)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn().Err(err).Str("secret", name).Msg("Could not read secret")
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			s[name] = value
		}
	}
	return s, nil
}

// Get returns the value for key. The environment variable formed from the
// PAPER_CRAWLER_ prefix and the upper-cased key, with dashes as
// underscores, takes precedence over the file.
func (s Secrets) Get(key string) string {
	if v := strings.TrimSpace(os.Getenv(EnvName(key))); v != "" {
		return v
	}
	return s[key]
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return "PAPER_CRAWLER_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}
