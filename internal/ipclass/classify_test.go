package ipclass

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Normalization(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain v4", "8.8.8.8", "8.8.8.8"},
		{"leading zeros", "008.008.004.004", "8.8.4.4"},
		{"whitespace", "  1.1.1.1\n", "1.1.1.1"},
		{"v6 upper", "2001:4860:4860:0000:0000:0000:0000:8888", "2001:4860:4860::8888"},
		{"v6 case", "2606:4700:4700::1111", "2606:4700:4700::1111"},
		{"v6 mixed case", "2A00:1450:4001:81D::200E", "2a00:1450:4001:81d::200e"},
		{"v4 mapped", "::ffff:8.8.8.8", "8.8.8.8"},
		{"zone dropped", "2001:4860:4860::8888%eth0", "2001:4860:4860::8888"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, err := Classify(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, a.Normalized)
			assert.False(t, a.Private)
		})
	}
}

func TestClassify_Invalid(t *testing.T) {
	for _, in := range []string{
		"", "   ", "not-an-ip", "256.1.1.1", "1.2.3", "1.2.3.4.5", "1..2.3",
		"1.2.3.-4", "0x1.2.3.4", "1234.1.1.1", "gggg::1", "8.8.8.8/32",
	} {
		_, err := Classify(in)
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("Classify(%q) error = %v, want ErrInvalid", in, err)
		}
	}
}

func TestClassify_Reserved(t *testing.T) {
	private := []string{
		"10.0.0.5", "10.255.255.255", "172.16.0.1", "172.31.255.254",
		"192.168.1.1", "127.0.0.1", "169.254.10.10", "100.64.0.1",
		"0.0.0.0", "224.0.0.251", "255.255.255.255", "192.0.2.10",
		"198.51.100.7", "203.0.113.9", "198.18.0.1",
		"::1", "::", "fe80::1", "fd12:3456:789a::1", "ff02::fb", "2001:db8::1",
		"::ffff:192.168.0.1",
	}
	for _, ip := range private {
		a, err := Classify(ip)
		require.NoError(t, err, ip)
		assert.True(t, a.Private, "%s should be reserved", ip)
		assert.True(t, IsPrivate(ip), ip)
		assert.False(t, IsPublic(ip), ip)
	}

	public := []string{"8.8.8.8", "1.1.1.1", "172.32.0.1", "100.128.0.1", "2001:4860:4860::8888"}
	for _, ip := range public {
		assert.True(t, IsPublic(ip), "%s should be public", ip)
		assert.False(t, IsPrivate(ip), ip)
	}

	assert.True(t, IsPrivate("garbage"), "malformed input counts as private")
}

func TestAddr_Octets(t *testing.T) {
	a, err := Classify("52.1.2.3")
	require.NoError(t, err)
	o, ok := a.Octets()
	require.True(t, ok)
	assert.Equal(t, [4]byte{52, 1, 2, 3}, o)
	assert.True(t, a.Is4())

	a, err = Classify("2001:4860::1")
	require.NoError(t, err)
	_, ok = a.Octets()
	assert.False(t, ok)
}
