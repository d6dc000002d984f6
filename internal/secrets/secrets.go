// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads provider credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
//
// Provider keys follow the <provider>-api-key convention (zhipu-api-key,
// openai-api-key, siliconflow-api-key, gemini-api-key, anthropic-api-key,
// tavily-api-key). Environment variables <PROVIDER>_API_KEY are consulted when
// no file is present.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdiddy/research-orchestrator/internal/logx"
)

// Secrets maps key names to values.
type Secrets map[string]string

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory is not an error; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string) (Secrets, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Secrets{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	s := make(Secrets)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logx.Warn().Err(err).Str("secret", name).Msg("could not read secret")
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			s[name] = value
		}
	}

	return s, nil
}

// Keys returns the loaded key names in sorted order. Values are never exposed.
func (s Secrets) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// APIKey returns the credential for a provider: the <provider>-api-key file
// first, then the <PROVIDER>_API_KEY environment variable.
func (s Secrets) APIKey(provider string) string {
	if v, ok := s[provider+"-api-key"]; ok {
		return v
	}
	env := strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
	return strings.TrimSpace(os.Getenv(env))
}
