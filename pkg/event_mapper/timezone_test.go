package event_mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindowsToIana(t *testing.T) {
	testCases := []struct {
		in     string
		want   string
		wantOk bool
	}{
		{"Pacific Standard Time", "America/Los_Angeles", true},
		{"Central European Standard Time", "Europe/Warsaw", true},
		{"Europe/Lisbon", "Europe/Lisbon", true},
		{"Mars Standard Time", "", false},
		{"", "", false},
	}
	for _, tc := range testCases {
		got, ok := WindowsToIana(tc.in)
		assert.Equal(t, tc.wantOk, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestIanaToWindows(t *testing.T) {
	testCases := []struct {
		in     string
		want   string
		wantOk bool
	}{
		{"America/New_York", "Eastern Standard Time", true},
		{"Europe/Amsterdam", "W. Europe Standard Time", true},
		{"UTC", "UTC", true},
		{"Tokyo Standard Time", "Tokyo Standard Time", true},
		{"Asia/Kathmandu", "Asia/Kathmandu", true},
		{"Not/AZone", "", false},
	}
	for _, tc := range testCases {
		got, ok := IanaToWindows(tc.in)
		assert.Equal(t, tc.wantOk, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestResolveZone(t *testing.T) {
	loc, ok := ResolveZone("W. Europe Standard Time")
	assert.True(t, ok)
	assert.Equal(t, "Europe/Berlin", loc.String())

	loc, ok = ResolveZone("Asia/Tokyo")
	assert.True(t, ok)
	assert.Equal(t, "Asia/Tokyo", loc.String())

	_, ok = ResolveZone("")
	assert.False(t, ok)
	_, ok = ResolveZone("Local")
	assert.False(t, ok)
	_, ok = ResolveZone("Mars Standard Time")
	assert.False(t, ok)
}

func TestTableRoundTrip(t *testing.T) {
	for _, z := range windowsZones {
		iana, ok := WindowsToIana(z[0])
		assert.True(t, ok, z[0])
		windows, ok := IanaToWindows(iana)
		assert.True(t, ok, iana)
		assert.Equal(t, z[0], windows)
	}
}
