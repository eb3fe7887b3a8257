package cookies

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

// ChromiumBrowser describes where a Chromium-family browser keeps its
// profiles and which Safe Storage entry guards its cookie key.
type ChromiumBrowser struct {
	Name        string
	SafeStorage string // keychain service, e.g. "Chrome Safe Storage"
	Account     string // keychain account
	LinuxApp    string // secret-tool "application" attribute
	DarwinDir   string // relative to ~/Library/Application Support
	LinuxDir    string // relative to ~/.config
}

// DefaultChromiumBrowsers is the lookup order after Safari.
var DefaultChromiumBrowsers = []ChromiumBrowser{
	{Name: "Chrome", SafeStorage: "Chrome Safe Storage", Account: "Chrome", LinuxApp: "chrome", DarwinDir: "Google/Chrome", LinuxDir: "google-chrome"},
	{Name: "Chrome Beta", SafeStorage: "Chrome Safe Storage", Account: "Chrome", LinuxApp: "chrome", DarwinDir: "Google/Chrome Beta", LinuxDir: "google-chrome-beta"},
	{Name: "Chrome Canary", SafeStorage: "Chrome Safe Storage", Account: "Chrome", DarwinDir: "Google/Chrome Canary"},
	{Name: "Arc", SafeStorage: "Arc Safe Storage", Account: "Arc", DarwinDir: "Arc/User Data"},
	{Name: "Chromium", SafeStorage: "Chromium Safe Storage", Account: "Chromium", LinuxApp: "chromium", DarwinDir: "Chromium", LinuxDir: "chromium"},
	{Name: "Brave", SafeStorage: "Brave Safe Storage", Account: "Brave", LinuxApp: "brave", DarwinDir: "BraveSoftware/Brave-Browser", LinuxDir: "BraveSoftware/Brave-Browser"},
	{Name: "Edge", SafeStorage: "Microsoft Edge Safe Storage", Account: "Microsoft Edge", LinuxApp: "chromium", DarwinDir: "Microsoft Edge", LinuxDir: "microsoft-edge"},
	{Name: "Vivaldi", SafeStorage: "Vivaldi Safe Storage", Account: "Vivaldi", LinuxApp: "vivaldi", DarwinDir: "Vivaldi", LinuxDir: "vivaldi"},
}

// Chromium stores a SHA-256 digest of the host in front of the value from
// this cookie DB schema version on.
const hostDigestMetaVersion = 24

const hostDigestLen = 32

// ChromiumStore reads one profile's Cookies database.
type ChromiumStore struct {
	Browser ChromiumBrowser
	Profile string // profile directory name, e.g. "Default"
	Dir     string // absolute profile directory
	keys    *keyCache
}

func (s *ChromiumStore) Label() string {
	return fmt.Sprintf("%s (%s)", s.Browser.Name, s.Profile)
}

func (s *ChromiumStore) cookiesPath() string {
	for _, p := range []string{
		filepath.Join(s.Dir, "Network", "Cookies"),
		filepath.Join(s.Dir, "Cookies"),
	} {
		if fileExists(p) {
			return p
		}
	}
	return ""
}

func (s *ChromiumStore) Read(ctx context.Context, domains []string) ([]Record, error) {
	path := s.cookiesPath()
	if path == "" {
		return nil, &StoreError{Store: s.Label(), Reason: ReasonMissing, Err: os.ErrNotExist}
	}

	tmpPath, cleanup, err := copyToTemp(path, "quotaprobe-cookies-*.db")
	if err != nil {
		return nil, classify(s.Label(), err)
	}
	defer cleanup()

	db, err := sql.Open("sqlite3", "file:"+tmpPath+"?mode=ro")
	if err != nil {
		return nil, classify(s.Label(), fmt.Errorf("opening cookies DB: %w", err))
	}
	defer db.Close()

	stripDigest := metaVersion(ctx, db) >= hostDigestMetaVersion

	rows, err := db.QueryContext(ctx, "SELECT host_key, name, value, encrypted_value FROM cookies")
	if err != nil {
		return nil, classify(s.Label(), fmt.Errorf("querying cookies: %w", err))
	}
	defer rows.Close()

	var (
		records  []Record
		failures int
		lastErr  error
	)
	for rows.Next() {
		var host, name, value string
		var encrypted []byte
		if err := rows.Scan(&host, &name, &value, &encrypted); err != nil {
			continue
		}
		if !matchesAny(host, domains) {
			continue
		}
		if value == "" && len(encrypted) > 0 {
			value, err = s.decrypt(ctx, encrypted, stripDigest)
			if err != nil {
				failures++
				lastErr = err
				continue
			}
		}
		records = append(records, Record{Name: name, Value: value, Domain: host, Source: s.Label()})
	}
	if err := rows.Err(); err != nil {
		return nil, classify(s.Label(), err)
	}
	if len(records) == 0 && failures > 0 {
		return nil, &StoreError{Store: s.Label(), Reason: ReasonDecrypt, Err: lastErr}
	}
	return records, nil
}

func (s *ChromiumStore) decrypt(ctx context.Context, encrypted []byte, stripDigest bool) (string, error) {
	if len(encrypted) < 3 {
		return "", fmt.Errorf("encrypted value too short")
	}
	prefix := string(encrypted[:3])
	if prefix != "v10" && prefix != "v11" {
		return "", fmt.Errorf("unexpected cookie encryption version: %q", prefix)
	}
	key, err := s.keys.key(ctx, s.Browser, prefix)
	if err != nil {
		return "", err
	}
	return decryptChromiumValue(encrypted, key, stripDigest)
}

func decryptChromiumValue(encrypted, key []byte, stripDigest bool) (string, error) {
	ciphertext := encrypted[3:]
	if len(ciphertext) == 0 {
		return "", fmt.Errorf("empty ciphertext after prefix")
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext not aligned to block size")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating AES cipher: %w", err)
	}

	iv := []byte("                ") // 16 spaces
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	padLen := int(plaintext[len(plaintext)-1])
	if padLen > aes.BlockSize || padLen > len(plaintext) || padLen == 0 {
		return "", fmt.Errorf("invalid PKCS7 padding")
	}
	plaintext = plaintext[:len(plaintext)-padLen]

	if stripDigest {
		if len(plaintext) < hostDigestLen {
			return "", fmt.Errorf("decrypted value shorter than host digest (len=%d)", len(plaintext))
		}
		plaintext = plaintext[hostDigestLen:]
	}
	return string(plaintext), nil
}

func metaVersion(ctx context.Context, db *sql.DB) int {
	var raw string
	if err := db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = 'version'").Scan(&raw); err != nil {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return v
}

// copyToTemp copies a database the browser may hold open into a private
// temp file (os.CreateTemp uses mode 0600). The returned cleanup removes it.
func copyToTemp(src, pattern string) (string, func(), error) {
	in, err := os.Open(src)
	if err != nil {
		return "", nil, err
	}
	defer in.Close()

	tmp, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", nil, fmt.Errorf("creating temp file: %w", err)
	}
	cleanup := func() {
		os.Remove(tmp.Name())
		os.Remove(tmp.Name() + "-wal")
		os.Remove(tmp.Name() + "-shm")
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("copying %s: %w", filepath.Base(src), err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return tmp.Name(), cleanup, nil
}
