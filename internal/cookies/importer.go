package cookies

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Importer enumerates cookie stores in lookup order: Safari, then every
// Chromium-family profile, then Firefox profiles.
type Importer struct {
	home     string
	goos     string
	browsers []ChromiumBrowser
	keys     *keyCache
	log      zerolog.Logger
}

type ImporterOption func(*Importer)

func WithHome(home string) ImporterOption {
	return func(im *Importer) { im.home = home }
}

func WithOS(goos string) ImporterOption {
	return func(im *Importer) { im.goos = goos }
}

func WithBrowsers(browsers ...ChromiumBrowser) ImporterOption {
	return func(im *Importer) { im.browsers = browsers }
}

func WithKeyProvider(kp KeyProvider) ImporterOption {
	return func(im *Importer) { im.keys = newKeyCache(im.goos, kp) }
}

func NewImporter(log zerolog.Logger, opts ...ImporterOption) *Importer {
	home, _ := os.UserHomeDir()
	im := &Importer{
		home:     home,
		goos:     runtime.GOOS,
		browsers: DefaultChromiumBrowsers,
		log:      log.With().Str("component", "cookies").Logger(),
	}
	for _, opt := range opts {
		opt(im)
	}
	if im.keys == nil {
		im.keys = newKeyCache(im.goos, NewSystemKeys(im.goos))
	}
	im.keys.os = im.goos
	return im
}

// ChromiumProfile is one profile directory of a Chromium-family browser.
type ChromiumProfile struct {
	Browser ChromiumBrowser
	Name    string
	Dir     string
}

func (p ChromiumProfile) Label() string {
	return p.Browser.Name + " (" + p.Name + ")"
}

func (im *Importer) browserRoot(b ChromiumBrowser) string {
	switch im.goos {
	case "darwin":
		if b.DarwinDir == "" {
			return ""
		}
		return filepath.Join(im.home, "Library", "Application Support", filepath.FromSlash(b.DarwinDir))
	case "linux":
		if b.LinuxDir == "" {
			return ""
		}
		return filepath.Join(im.home, ".config", filepath.FromSlash(b.LinuxDir))
	}
	return ""
}

// ChromiumProfiles lists profiles of every known browser, "Default" first
// and then "Profile N" in numeric order.
func (im *Importer) ChromiumProfiles() []ChromiumProfile {
	var out []ChromiumProfile
	for _, b := range im.browsers {
		root := im.browserRoot(b)
		if root == "" || !dirExists(root) {
			continue
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			im.log.Debug().Str("browser", b.Name).Err(err).Msg("cannot list profiles")
			continue
		}
		names := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
			name := e.Name()
			return name, e.IsDir() && (name == "Default" || strings.HasPrefix(name, "Profile "))
		})
		sort.SliceStable(names, func(i, j int) bool { return profileRank(names[i]) < profileRank(names[j]) })
		for _, name := range names {
			out = append(out, ChromiumProfile{Browser: b, Name: name, Dir: filepath.Join(root, name)})
		}
	}
	return out
}

func profileRank(name string) int {
	if name == "Default" {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, "Profile "))
	if err != nil {
		return 1 << 20
	}
	return n
}

func (im *Importer) firefoxProfilesRoot() string {
	switch im.goos {
	case "darwin":
		return filepath.Join(im.home, "Library", "Application Support", "Firefox", "Profiles")
	case "linux":
		return filepath.Join(im.home, ".mozilla", "firefox")
	}
	return ""
}

func (im *Importer) firefoxStores() []Store {
	root := im.firefoxProfilesRoot()
	if root == "" {
		return nil
	}
	matches, _ := filepath.Glob(filepath.Join(root, "*", "cookies.sqlite"))
	sort.Strings(matches)
	return lo.Map(matches, func(path string, _ int) Store {
		return &FirefoxStore{Profile: filepath.Base(filepath.Dir(path)), Path: path}
	})
}

// Stores returns every store present on this machine in lookup order.
func (im *Importer) Stores() []Store {
	var stores []Store
	if im.goos == "darwin" {
		stores = append(stores, &SafariStore{Paths: safariCookiePaths(im.home)})
	}
	for _, p := range im.ChromiumProfiles() {
		stores = append(stores, &ChromiumStore{Browser: p.Browser, Profile: p.Name, Dir: p.Dir, keys: im.keys})
	}
	stores = append(stores, im.firefoxStores()...)
	return stores
}

// LocalStorageDirs returns each Chromium profile's LevelDB local-storage directory.
func (im *Importer) LocalStorageDirs() []LevelDBDir {
	var dirs []LevelDBDir
	for _, p := range im.ChromiumProfiles() {
		dir := filepath.Join(p.Dir, "Local Storage", "leveldb")
		if dirExists(dir) {
			dirs = append(dirs, LevelDBDir{Label: p.Label(), Path: dir})
		}
	}
	return dirs
}
