package targets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"  Example.COM ", "example.com"},
		{"https://user:pw@Example.com:8443/login?x=1", "example.com"},
		{"//cdn.example.com/a.js", "cdn.example.com"},
		{"admin@10.0.0.1:22", "10.0.0.1"},
		{"[::1]:443", "::1"},
		{"[2001:db8::1]", "2001:db8::1"},
		{"2001:db8::1", "2001:db8::1"},
		{"example.com:8080/path", "example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestStripWildcard(t *testing.T) {
	assert.Equal(t, "example.com", StripWildcard("*.example.com"))
	assert.Equal(t, "example", StripWildcard("example.*"))
	assert.Equal(t, "shop.example", StripWildcard(" *.shop.example.* "))
	assert.Equal(t, "example.com", StripWildcard("example.com"))
}

func TestParse(t *testing.T) {
	tgt, err := Parse("http://192.168.0.1:8080/")
	require.NoError(t, err)
	assert.Equal(t, Target{Host: "192.168.0.1", IPs: []string{"192.168.0.1"}}, tgt)

	tgt, err = Parse("::ffff:10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", tgt.Host)

	tgt, err = Parse("Sub.Example.org")
	require.NoError(t, err)
	assert.Equal(t, "sub.example.org", tgt.Domain)
	assert.Empty(t, tgt.IPs)

	for _, bad := range []string{"", "   ", "exa mple.com", "bad_host!"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrInvalidTarget, bad)
	}
}

type fakeResolver map[string][]string

func (f fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if ips, ok := f[host]; ok {
		return ips, nil
	}
	return nil, errors.New("no such host")
}

func TestBuild(t *testing.T) {
	r := fakeResolver{"example.com": {"93.184.216.34", "93.184.216.34", "::ffff:1.2.3.4", "garbage"}}

	tgt, err := Build(context.Background(), "example.com", r)
	require.NoError(t, err)
	assert.Equal(t, []string{"93.184.216.34", "1.2.3.4"}, tgt.IPs)
	assert.Equal(t, []string{"example.com", "93.184.216.34", "1.2.3.4"}, tgt.Hosts())

	tgt, err = Build(context.Background(), "unknown.example", r)
	require.NoError(t, err)
	assert.Equal(t, []string{"unknown.example"}, tgt.Hosts())

	tgt, err = Build(context.Background(), "10.0.0.5", r)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.5"}, tgt.Hosts())

	_, err = Build(context.Background(), "", r)
	assert.ErrorIs(t, err, ErrInvalidTarget)
}
