package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"pgregory.net/rapid"
)

func TestSizeFlag(t *testing.T) {
	cases := map[string]int{
		"4096":  4096,
		"4096B": 4096,
		"512kb": 512 * 1024,
		"2MB":   2 * 1024 * 1024,
		" 1GB ": 1024 * 1024 * 1024,
	}
	for in, want := range cases {
		var s sizeFlag
		require.NoError(t, s.Set(in), in)
		assert.Equal(t, sizeFlag(want), s, in)
	}

	var s sizeFlag
	assert.Error(t, s.Set("lots"))
	assert.Error(t, s.Set("MB"))
	assert.Equal(t, "size", s.Type())
}

func TestSizeFlagYAML(t *testing.T) {
	var v struct {
		Buffer sizeFlag `yaml:"buffer"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("buffer: 256KB\n"), &v))
	assert.Equal(t, sizeFlag(256*1024), v.Buffer)
}

func TestSizeFlagRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 1<<30).Draw(t, "n")
		in := sizeFlag(n)
		var s sizeFlag
		if err := s.Set(in.String()); err != nil {
			t.Fatal(err)
		}
		if int(s) != n {
			t.Fatalf("got %d, want %d", s, n)
		}
	})
}
