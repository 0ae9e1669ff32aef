package core

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

// EnvSource indicates where an env var value was resolved from.
type EnvSource string

const (
	EnvSourceProcess EnvSource = "process environment"
	EnvSourceFile    EnvSource = ".env"
)

// ResolvedEnvVar holds a resolved env var value and its source.
type ResolvedEnvVar struct {
	Name   string
	Value  string
	Source EnvSource
}

// EnvResolver looks up settings keys.
//
// Precedence (highest to lowest):
//  1. Process environment, canonical name then aliases
//  2. Project .env, canonical name then aliases
type EnvResolver struct {
	lookup func(string) (string, bool)
	file   map[string]string
}

// Lookup resolves key. The returned Name is the variable actually found,
// which may be an alias. Variables set to an empty value count as unset.
func (r *EnvResolver) Lookup(key string) (ResolvedEnvVar, bool) {
	names := append([]string{key}, envAliases[key]...)
	for _, name := range names {
		if r.lookup == nil {
			break
		}
		if val, ok := r.lookup(name); ok && strings.TrimSpace(val) != "" {
			return ResolvedEnvVar{Name: name, Value: val, Source: EnvSourceProcess}, true
		}
	}
	for _, name := range names {
		if val, ok := r.file[name]; ok && strings.TrimSpace(val) != "" {
			return ResolvedEnvVar{Name: name, Value: val, Source: EnvSourceFile}, true
		}
	}
	return ResolvedEnvVar{}, false
}

// readEnvFile parses a .env file without exporting anything into the
// process environment. A missing file yields an empty map.
func readEnvFile(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	return env, nil
}
