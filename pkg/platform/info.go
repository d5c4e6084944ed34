package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

const (
	// LibraryVersion identifies this client library in blob headers.
	LibraryVersion = "tally_go_1.0"

	unknown = "unknown"
)

// Info reports the application and device facts of a blob header. The
// application version is looked up once and cached.
type Info struct {
	// AppVersion overrides the version taken from the build info.
	AppVersion string

	once       sync.Once
	appVersion string
}

// Version returns the application version: the configured value, else the
// main module version from the build info, else "unknown".
func (i *Info) Version() string {
	i.once.Do(func() {
		i.appVersion = i.AppVersion
		if i.appVersion != "" {
			return
		}
		i.appVersion = unknown
		if info, ok := debug.ReadBuildInfo(); ok {
			if v := info.Main.Version; v != "" && v != "(devel)" {
				i.appVersion = v
			}
		}
	})
	return i.appVersion
}

// Language returns the two-letter language of the process locale, taken
// from LC_ALL, LC_MESSAGES or LANG in that order. It falls back to "en".
func Language() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if code, ok := parseLocale(os.Getenv(key)); ok {
			return code
		}
	}
	return "en"
}

// parseLocale turns a POSIX locale such as "pt_BR.UTF-8@euro" into its
// ISO 639-1 language code.
func parseLocale(locale string) (string, bool) {
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	if locale == "" || locale == "C" || locale == "POSIX" {
		return "", false
	}

	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return "", false
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return "", false
	}
	code := base.String()
	if len(code) != 2 {
		return "", false
	}
	return code, true
}

// PlatformName returns the display name of the operating system.
func PlatformName() string {
	switch runtime.GOOS {
	case "darwin":
		return "Mac OS X"
	case "linux":
		return "Linux"
	case "windows":
		return "Windows"
	case "freebsd":
		return "FreeBSD"
	default:
		return runtime.GOOS
	}
}

// DataDir returns the per-user application data directory for dirName,
// for example ~/Library/Application Support/<dirName> on macOS.
func DataDir(dirName string) (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("no application data directory: %w", err)
	}
	if dirName == "" {
		return "", errors.New("data directory name is empty")
	}
	return filepath.Join(base, dirName), nil
}
