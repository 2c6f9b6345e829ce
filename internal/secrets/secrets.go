// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets resolves LLM transport credentials from a .env file and
// the process environment. The pipeline core never reads credentials
// itself; it hands the resolved map to the transport.
//
// Recognized keys: OPENAI_API_KEY, GEMINI_API_KEY, OLLAMA_HOST.
package secrets

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// knownKeys are the credential keys the transports understand.
var knownKeys = []string{"OPENAI_API_KEY", "GEMINI_API_KEY", "OLLAMA_HOST"}

// Load reads the .env file at path (missing file is not an error) and
// overlays the process environment, which always wins. Values are trimmed;
// empty values are dropped.
func Load(path string) (map[string]string, error) {
	secrets := make(map[string]string)

	fileValues, err := godotenv.Read(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	} else {
		for k, v := range fileValues {
			if v = strings.TrimSpace(v); v != "" {
				secrets[k] = v
			}
		}
	}

	for _, key := range knownKeys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			secrets[key] = v
		}
	}

	return secrets, nil
}

// Keys returns the sorted names present in the map, for startup logging
// that must not leak values.
func Keys(secrets map[string]string) []string {
	names := make([]string, 0, len(secrets))
	for k := range secrets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
