// Package auth resolves the Bearer credential the request executor attaches
// to outbound requests. Credentials are resolved once at construction time
// behind an explicit interface, never mutated through a process-wide
// singleton.
//
// The on-disk format is an INI-style ~/.trussrc with one [profile] section
// per remote, each carrying remote_url and api_key.
package auth

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider supplies the credential the executor attaches as
// `Authorization: Bearer <token>`.
type Provider interface {
	Credentials() string
}

// StaticProvider wraps a fixed token, useful for tests and for config-file-
// supplied keys that bypass ~/.trussrc entirely.
type StaticProvider string

func (s StaticProvider) Credentials() string { return string(s) }

// Remote is one named profile from a trussrc file.
type Remote struct {
	Name      string
	RemoteURL string
	APIKey    string

	// KeyFingerprint is an optional bcrypt hash of APIKey (a `key_fingerprint`
	// line), checked by VerifyIntegrity as a typo/corruption guard.
	KeyFingerprint string
}

func (r Remote) Credentials() string { return r.APIKey }

// Trussrc holds every profile parsed from a trussrc file.
type Trussrc struct {
	profiles map[string]Remote
	order    []string
}

// DefaultPath returns ~/.trussrc.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".trussrc"
	}
	return filepath.Join(home, ".trussrc")
}

// LoadTrussrc parses an INI-format trussrc file. Go's standard library has no
// INI parser and no example repo in the retrieval pack imports one directly
// (see DESIGN.md); the format trussrc_loader.py defines is two scalar fields
// per `[section]`, well within reach of a small hand-rolled scanner.
func LoadTrussrc(path string) (*Trussrc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("auth: open %s: %w", path, err)
	}
	defer f.Close()

	profiles := make(map[string]Remote)
	var order []string
	var current string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			current = strings.TrimSpace(line[1 : len(line)-1])
			if _, exists := profiles[current]; !exists {
				order = append(order, current)
			}
			profiles[current] = Remote{Name: current}
			continue
		}
		if current == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		remote := profiles[current]
		switch key {
		case "remote_url":
			remote.RemoteURL = value
		case "api_key":
			remote.APIKey = value
		case "key_fingerprint":
			remote.KeyFingerprint = value
		}
		profiles[current] = remote
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("auth: scan %s: %w", path, err)
	}
	return &Trussrc{profiles: profiles, order: order}, nil
}

// Profiles lists the section names found in the file, in file order.
func (t *Trussrc) Profiles() []string {
	names := make([]string, len(t.order))
	copy(names, t.order)
	return names
}

// Profile returns the named remote, or false if it isn't present.
func (t *Trussrc) Profile(name string) (Remote, bool) {
	r, ok := t.profiles[name]
	return r, ok
}

// Default returns the first profile in file order, or false if the file
// defined none. Most trussrc files carry exactly one remote; this spares
// callers that don't care about multi-profile selection from walking
// Profiles() themselves.
func (t *Trussrc) Default() (Remote, bool) {
	if len(t.order) == 0 {
		return Remote{}, false
	}
	return t.profiles[t.order[0]], true
}
