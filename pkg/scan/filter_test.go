package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFilter(t *testing.T) {
	f, err := NewFilter(WithMatch("key:*"), WithType(TypeString), WithCount(10))
	require.NoError(t, err)
	assert.Equal(t, "key:*", f.Match())
	assert.Equal(t, TypeString, f.Type())
	count, ok := f.Count()
	assert.True(t, ok)
	assert.Equal(t, int64(10), count)
	assert.Equal(t, "match=key:*|type=string|count=10", f.String())
}

func TestFilterTypeCaseInsensitive(t *testing.T) {
	for _, in := range []KeyType{"STRING", "String", " string "} {
		f, err := NewFilter(WithType(in))
		require.NoError(t, err, in)
		assert.Equal(t, TypeString, f.Type())
	}
}

func TestZeroFilter(t *testing.T) {
	var f Filter
	require.NoError(t, f.Validate())
	assert.Empty(t, f.Match())
	assert.Empty(t, f.Type())
	_, ok := f.Count()
	assert.False(t, ok)
}

func TestFilterInvalid(t *testing.T) {
	for name, opts := range map[string][]FilterOption{
		"zero count":     {WithCount(0)},
		"negative count": {WithCount(-5)},
		"unknown type":   {WithType("bitmap")},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewFilter(opts...)
			require.ErrorIs(t, err, ErrInvalidScanArgument)
		})
	}
	assert.Panics(t, func() { MustFilter(WithCount(0)) })
}

func TestFilterDefaultCount(t *testing.T) {
	f := MustFilter(WithMatch("a*")).withDefaultCount(50)
	count, ok := f.Count()
	assert.True(t, ok)
	assert.Equal(t, int64(50), count)

	f = MustFilter(WithCount(3)).withDefaultCount(50)
	count, _ = f.Count()
	assert.Equal(t, int64(3), count)

	_, ok = Filter{}.withDefaultCount(0).Count()
	assert.False(t, ok)
}

func TestParseKeyType(t *testing.T) {
	for in, want := range map[string]KeyType{
		"STRING": TypeString,
		"list":   TypeList,
		"Set":    TypeSet,
		"zset":   TypeZSet,
		"HASH":   TypeHash,
		"stream": TypeStream,
		"":       "",
	} {
		got, err := ParseKeyType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseKeyType("json")
	require.ErrorIs(t, err, ErrInvalidScanArgument)
}
