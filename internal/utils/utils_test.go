package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumber(t *testing.T) {
	assert.Equal(t, "0", Number(0))
	assert.Equal(t, "999", Number(999))
	assert.Equal(t, "1,000", Number(1000))
	assert.Equal(t, "1,234,567", Number(1234567))
	assert.Equal(t, "-1,234", Number(-1234))
	assert.Equal(t, "-12", Number(-12))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, "0s", Duration(500*time.Millisecond))
	assert.Equal(t, "5.2s", Duration(5200*time.Millisecond))
	assert.Equal(t, "3m5.0s", Duration(3*time.Minute+5*time.Second))
	assert.Equal(t, "2h15m", Duration(2*time.Hour+15*time.Minute))
}

func TestRate(t *testing.T) {
	assert.Equal(t, "123.45", Rate(123.45))
	assert.Equal(t, "12.34K", Rate(12340))
	assert.Equal(t, "1.50M", Rate(1500000))
}

func TestUTF16LE(t *testing.T) {
	for _, s := range []string{"", "voice.ogg", "音声/voice.ogg", "😀"} {
		got, err := DecodeUTF16LE(EncodeUTF16LE(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	got, err := DecodeUTF16LE([]byte{0xFF, 0xFE, 'h', 0, 'i', 0})
	require.NoError(t, err)
	assert.Equal(t, "hi", got, "byte order mark is dropped")

	_, err = DecodeUTF16LE([]byte{'h', 0, 'i'})
	assert.Error(t, err)
}

func TestParseVersionInfo(t *testing.T) {
	tests := []struct {
		in   string
		want *VersionInfo
	}{
		{"1.0", &VersionInfo{Major: 1}},
		{"2.13.4", &VersionInfo{Major: 2, Minor: 13, Patch: 4}},
		{" 1.2 ", &VersionInfo{Major: 1, Minor: 2}},
		{"", nil},
		{"1", nil},
		{"1.2.3.4", nil},
		{"1.x", nil},
		{"1.-2", nil},
		{"+1.2", nil},
		{"1..2", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVersionInfo(tt.in)
			if tt.want == nil {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompare(t *testing.T) {
	v := VersionInfo{Major: 1, Minor: 2, Patch: 3}
	assert.Equal(t, 0, v.Compare(v))
	assert.Equal(t, -1, v.Compare(VersionInfo{Major: 1, Minor: 3}))
	assert.Equal(t, 1, v.Compare(VersionInfo{Major: 1, Minor: 2, Patch: 2}))
	assert.Equal(t, 1, v.Compare(VersionInfo{Major: 0, Minor: 9, Patch: 9}))
}

func TestProgressDisabled(t *testing.T) {
	p := NewProgress(10, false)
	p.Update(5, "file")
	p.Finish()
	p.SetEnabled(false)
}
