package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterminism(t *testing.T) {
	req := map[string]any{"objectType": "employee", "pageSize": 10}
	a, err := Fingerprint(DomainRequest, req)
	require.NoError(t, err)
	b, err := Fingerprint(DomainRequest, req)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprintChangesWithInput(t *testing.T) {
	a := mustFingerprint(t, DomainRequest, map[string]any{"pageSize": 10})
	b := mustFingerprint(t, DomainRequest, map[string]any{"pageSize": 11})
	assert.NotEqual(t, a, b)
}

func TestFingerprintObjectKeyOrder(t *testing.T) {
	a := mustFingerprint(t, DomainRequest, Object{"a": Int(1), "b": Double(2.5)})
	b := mustFingerprint(t, DomainRequest, Object{"b": Double(2.5), "a": Int(1)})
	assert.Equal(t, a, b)
}

type left struct{ Sets []int }
type right struct{ Sets []int }

func TestFingerprintIncludesDynamicTypes(t *testing.T) {
	type holder struct{ Node any }
	a := mustFingerprint(t, DomainRequest, holder{Node: left{Sets: []int{1}}})
	b := mustFingerprint(t, DomainRequest, holder{Node: right{Sets: []int{1}}})
	assert.NotEqual(t, a, b)
}

func TestFingerprintTimestamps(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := mustFingerprint(t, DomainRequest, Array{NewTimestamp(ts)})
	b := mustFingerprint(t, DomainRequest, Array{NewTimestamp(ts.In(time.FixedZone("x", 3600)))})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, mustFingerprint(t, DomainRequest, Array{NewTimestamp(ts.Add(time.Second))}))
}

func TestDomainSeparation(t *testing.T) {
	v := Object{"x": Int(1)}
	assert.NotEqual(t,
		mustFingerprint(t, DomainRequest, v),
		mustFingerprint(t, DomainPageToken, v))
}

func TestHashWithDomainNullSeparator(t *testing.T) {
	// "ab" + "c" must differ from "a" + "bc".
	assert.NotEqual(t, hashWithDomain("ab", []byte("c")), hashWithDomain("a", []byte("bc")))
}

func TestFingerprintRejectsUnencodable(t *testing.T) {
	_, err := Fingerprint(DomainRequest, make(chan int))
	assert.Error(t, err)
}

func mustFingerprint(t *testing.T, domain string, v any) string {
	t.Helper()
	fp, err := Fingerprint(domain, v)
	require.NoError(t, err)
	return fp
}
