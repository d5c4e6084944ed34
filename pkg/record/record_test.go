package record

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeOpen(t *testing.T) {
	line, err := Encode(NewOpen("sess-1", 1700000000))
	require.NoError(t, err)
	assert.Equal(t, `{"dt":"s","ct":1700000000,"u":"sess-1"}`+"\n", line)
}

func TestEncodeClose(t *testing.T) {
	line, err := Encode(NewClose("id-2", "sess-1", 1700000000, 1700000042))
	require.NoError(t, err)
	assert.Equal(t, `{"dt":"c","u":"id-2","ss":1700000000,"su":"sess-1","ct":1700000042}`+"\n", line)
}

func TestEncodeEvent(t *testing.T) {
	t.Run("without attributes", func(t *testing.T) {
		line, err := Encode(NewEvent("id-1", "sess-1", "Button Clicked", nil, 5))
		require.NoError(t, err)
		assert.Equal(t, `{"dt":"e","ct":5,"u":"id-1","su":"sess-1","n":"Button Clicked"}`+"\n", line)
	})

	t.Run("with attributes", func(t *testing.T) {
		line, err := Encode(NewEvent("id-1", "sess-1", "buy", map[string]string{"b": "2", "a": "1"}, 5))
		require.NoError(t, err)
		assert.Equal(t, `{"dt":"e","ct":5,"u":"id-1","su":"sess-1","n":"buy","attrs":{"a":"1","b":"2"}}`+"\n", line)
	})

	t.Run("empty attribute map is kept", func(t *testing.T) {
		line, err := Encode(NewEvent("id-1", "sess-1", "buy", map[string]string{}, 5))
		require.NoError(t, err)
		assert.Equal(t, `{"dt":"e","ct":5,"u":"id-1","su":"sess-1","n":"buy","attrs":{}}`+"\n", line)
	})
}

func TestEncodeEscapesQuotesAndBackslashesOnce(t *testing.T) {
	line, err := Encode(NewEvent("id", "sess", `x"y`, map[string]string{`k\`: `v"`}, 1))
	require.NoError(t, err)

	assert.Contains(t, line, `"n":"x\"y"`)
	assert.Contains(t, line, `"attrs":{"k\\":"v\""}`)
	assert.Equal(t, 1, strings.Count(line, `x\"y`))

	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	assert.Equal(t, `x"y`, decoded.Name)
	assert.Equal(t, map[string]string{`k\`: `v"`}, decoded.Attributes)
}

func TestEncodeKeepsOneLine(t *testing.T) {
	line, err := Encode(NewEvent("id", "sess", "multi\nline <b>&", nil, 1))
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(line, "\n"))
	assert.True(t, strings.HasSuffix(line, "\n"))
	assert.Contains(t, line, `multi\nline <b>&`)
}

func TestEncodeReplacesInvalidUTF8(t *testing.T) {
	line, err := Encode(NewEvent("id-2", "sess-1", "a\x01b\xffc", nil, 1))
	require.NoError(t, err)
	assert.Contains(t, line, `"n":"a\u0001b\ufffdc"`)
}

func TestEncodeHeader(t *testing.T) {
	h := Header{
		DataType:    TypeHeader,
		PersistedAt: 0,
		Sequence:    3,
		ID:          "blob-1",
		Attributes: HeaderAttrs{
			DataType:       TypeAttributes,
			AppKey:         "key",
			DeviceID:       "dev",
			LibraryVersion: "go_1.0",
			AppVersion:     "2.1",
			Platform:       "Linux",
			Language:       "en",
			DeviceModel:    "x86_64",
			OSVersion:      "6.1",
			InstallID:      "inst",
		},
	}

	line, err := Encode(h)
	require.NoError(t, err)
	assert.Equal(t,
		`{"dt":"h","pa":0,"seq":3,"u":"blob-1","attrs":{"dt":"a","au":"key","du":"dev","lv":"go_1.0","av":"2.1","dp":"Linux","dll":"en","dmo":"x86_64","dov":"6.1","iu":"inst"}}`+"\n",
		line)
}
