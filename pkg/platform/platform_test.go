package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePreferences(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs", "prefs.yaml")
	prefs := NewFilePreferences(path)

	_, ok, err := prefs.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, prefs.Set("a", "1"))
	require.NoError(t, prefs.Set("b", "two"))

	reopened := NewFilePreferences(path)
	value, ok, err := reopened.Get("b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two", value)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "a: \"1\"")
}

func TestFilePreferences_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- not\n- a map\n"), 0600))

	_, _, err := NewFilePreferences(path).Get(DeviceIDKey)
	assert.Error(t, err)
}

func TestDeviceID_IsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")

	first, err := DeviceID(NewFilePreferences(path))
	require.NoError(t, err)
	assert.Len(t, first, 36)

	second, err := DeviceID(NewFilePreferences(path))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestInfoVersion(t *testing.T) {
	configured := &Info{AppVersion: "2.3.4"}
	assert.Equal(t, "2.3.4", configured.Version())

	detected := &Info{}
	v := detected.Version()
	assert.NotEmpty(t, v)
	assert.Equal(t, v, detected.Version())
}

func TestParseLocale(t *testing.T) {
	tests := []struct {
		locale string
		want   string
		ok     bool
	}{
		{"en_US.UTF-8", "en", true},
		{"pt_BR", "pt", true},
		{"de_DE@euro", "de", true},
		{"fr", "fr", true},
		{"C", "", false},
		{"POSIX", "", false},
		{"", "", false},
		{"C.UTF-8", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			got, ok := parseLocale(tt.locale)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLanguage(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "ja_JP.UTF-8")
	assert.Equal(t, "ja", Language())

	t.Setenv("LC_ALL", "es_ES.UTF-8")
	assert.Equal(t, "es", Language())

	t.Setenv("LC_ALL", "")
	t.Setenv("LANG", "C")
	assert.Equal(t, "en", Language())
}

func TestDataDir(t *testing.T) {
	dir, err := DataDir("localytics")
	if err != nil {
		t.Skipf("no user config dir: %v", err)
	}
	assert.Equal(t, "localytics", filepath.Base(dir))

	_, err = DataDir("")
	assert.Error(t, err)
}

func TestHostFacts(t *testing.T) {
	assert.NotEmpty(t, OSVersion())
	assert.NotEmpty(t, DeviceModel())
	assert.NotEmpty(t, PlatformName())
}
