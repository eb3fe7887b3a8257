package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// ProfileFiles are the shell startup files searched for exported secrets,
// in lookup order.
var ProfileFiles = []string{".zshrc", ".bashrc", ".profile", ".zprofile"}

// ReadKeyValue parses a "key = value" file. Blank lines and lines starting
// with '#' are ignored; values may be quoted. A missing file is empty.
func ReadKeyValue(path string) (map[string]string, error) {
	out := map[string]string{}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = parseValue(value)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("reading %s: %w", path, err)
	}
	return out, nil
}

// ReadTOMLString returns a top-level string key from a TOML file. Files
// that are not valid TOML are read line by line instead.
func ReadTOMLString(path, key string) (string, error) {
	var doc map[string]any
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		kv, kvErr := ReadKeyValue(path)
		if kvErr != nil {
			return "", kvErr
		}
		return kv[key], nil
	}
	if s, ok := doc[key].(string); ok {
		return strings.TrimSpace(s), nil
	}
	return "", nil
}

// LookupProfileValue finds "NAME=value" (optionally exported, optionally
// quoted) in the user's shell profiles. Within a file the last assignment
// wins; the first file that assigns it wins.
func LookupProfileValue(home, name string) (value, file string, ok bool) {
	if home == "" || name == "" {
		return "", "", false
	}
	for _, base := range ProfileFiles {
		path := filepath.Join(home, base)
		if v, found := scanProfile(path, name); found {
			return v, path, true
		}
	}
	return "", "", false
}

func scanProfile(path, name string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	var (
		value string
		found bool
	)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, rest, ok := strings.Cut(line, "=")
		if !ok || key != name {
			continue
		}
		v := parseValue(rest)
		if v == "" {
			continue
		}
		value, found = v, true
	}
	return value, found
}

// ResolveBaseURL picks a base URL: the environment variable, then key in
// the override file at path (TOML when the name ends in .toml), then def.
// Trailing slashes are removed.
func ResolveBaseURL(envVar, path, key, def string) string {
	if envVar != "" {
		if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
			return strings.TrimRight(v, "/")
		}
	}
	if path != "" && key != "" {
		var v string
		if strings.HasSuffix(path, ".toml") {
			v, _ = ReadTOMLString(path, key)
		} else if kv, err := ReadKeyValue(path); err == nil {
			v = kv[key]
		}
		if v = strings.TrimSpace(v); v != "" {
			return strings.TrimRight(v, "/")
		}
	}
	return strings.TrimRight(def, "/")
}

// parseValue drops surrounding quotes, or a trailing " #" comment from an
// unquoted value.
func parseValue(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if q := v[0]; q == '"' || q == '\'' {
		if end := strings.IndexByte(v[1:], q); end >= 0 {
			return v[1 : end+1]
		}
		return v[1:]
	}
	if i := strings.Index(v, " #"); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
