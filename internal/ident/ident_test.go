package ident

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntityID(t *testing.T) {
	cases := []struct {
		raw   string
		valid bool
	}{
		{"https://e2e/user/1", true},
		{"http://example.com/a/b", true},
		{"ftp://example.com/a", false},
		{"not-a-url", false},
		{"", false},
		{"https://" + strings.Repeat("a", 2100), false},
	}
	for _, tc := range cases {
		_, err := NewEntityID(tc.raw)
		assert.Equal(t, tc.valid, err == nil, "raw=%q err=%v", tc.raw, err)
		assert.Equal(t, tc.valid, ValidateEntityID(tc.raw))
	}
}

func TestEntityIDRejectsControlChars(t *testing.T) {
	_, err := NewEntityID("https://example.com/a b")
	assert.Error(t, err)

	_, err = NewEntityID("https://example.com/a​b")
	assert.Error(t, err)
}

func TestNewPredicate(t *testing.T) {
	cases := []struct {
		raw   string
		valid bool
	}{
		{"name", true},
		{"first_name", true},
		{"$type", true},
		{"has:colon", false},
		{"has space", false},
		{"", false},
	}
	for _, tc := range cases {
		_, err := NewPredicate(tc.raw)
		assert.Equal(t, tc.valid, err == nil, "raw=%q", tc.raw)
	}
}

func TestNewNamespace(t *testing.T) {
	_, err := NewNamespace("https://e2e")
	assert.NoError(t, err)

	_, err = NewNamespace("not-a-url")
	assert.Error(t, err)
}

func TestNewTxID(t *testing.T) {
	_, err := NewTxID("01ARZ3NDEKTSV4RRFFQ69G5FAV")
	assert.NoError(t, err)

	_, err = NewTxID("too-short")
	assert.Error(t, err)

	_, err = NewTxID("0IARZ3NDEKTSV4RRFFQ69G5FAV") // contains I
	assert.Error(t, err)
}

func TestResolveNamespaceRoundTrip(t *testing.T) {
	id, err := NewEntityID("https://e2e.example/user/42")
	require.NoError(t, err)

	resolved, err := ResolveNamespace(id)
	require.NoError(t, err)
	assert.Equal(t, Namespace("https://e2e.example"), resolved.Namespace)
	assert.Equal(t, "user/42", resolved.LocalID)

	reformed, err := FormEntityID(resolved.Namespace, resolved.LocalID)
	require.NoError(t, err)
	assert.Equal(t, id, reformed)
}

func TestGenerateTxIDMonotonic(t *testing.T) {
	a, err := GenerateTxID(1_700_000_000_000, nil)
	require.NoError(t, err)
	b, err := GenerateTxID(1_700_000_000_001, nil)
	require.NoError(t, err)

	assert.True(t, ValidateTxID(string(a)))
	assert.True(t, ValidateTxID(string(b)))
	assert.Less(t, string(a), string(b))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab…", Truncate("abcdef", 2))
}
