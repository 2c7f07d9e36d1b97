package pathcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		key     string
		expPath string
	}{
		{"features/17", "specs/features/17.json"},
		{"library/docs/3", "specs/library/docs/3.json"},
		{"library/changelog", "specs/library/changelog.json"},
		{"design/system-v2", "specs/design/system-v2.json"},
		{"top", "specs/top.json"},
	}

	for _, test := range tests {
		path, err := Encode(test.key)
		require.NoError(t, err, test.key)
		assert.Equal(t, test.expPath, path)

		key, ok := Decode(path)
		assert.True(t, ok, path)
		assert.Equal(t, test.key, key)
	}
}

func TestEncodeInvalid(t *testing.T) {
	for _, key := range []string{
		"",
		"/features/1",
		"features/1/",
		"features//1",
		"features/../1",
		"./features",
		"features\\1",
		"features/1.json",
	} {
		_, err := Encode(key)
		assert.Error(t, err, key)
		assert.IsType(t, ErrInvalidKey{}, err)
	}
}

func TestDecodeIgnoresForeignPaths(t *testing.T) {
	for _, path := range []string{
		"README.md",
		"features-1.json",
		"specs",
		"specs/features/1.txt",
		"other/features/1.json",
		"specsfeatures/1.json",
		"specs/.json",
		"specs/a/b.json.json",
	} {
		_, ok := Decode(path)
		assert.False(t, ok, path)
	}
}

func TestHyphenatedKeysStayDistinct(t *testing.T) {
	a, err := Encode("features/a-b")
	require.NoError(t, err)
	b, err := Encode("features/a/b")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestIsNamespaceDir(t *testing.T) {
	assert.True(t, IsNamespaceDir("specs"))
	assert.True(t, IsNamespaceDir("specs/features"))
	assert.False(t, IsNamespaceDir("specsx"))
	assert.False(t, IsNamespaceDir("docs"))
}
