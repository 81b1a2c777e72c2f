package compose

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseCompose = `
name: kamiwaza
services:
  cockroachdb:
    image: cockroachdb/cockroach:v23.1.11
    container_name: kamiwaza-cockroachdb
    ports:
      - "26257:26257"
      - "8080:8080"
  etcd:
    image: quay.io/coreos/etcd:v3.5.9
    ports:
      - target: 2379
        published: "2379"
      - "2380"
  traefik:
    image: traefik:v2.10
    ports:
      - "127.0.0.1:7777:80/tcp"
      - "[::1]:7443:443"
      - "5353/udp"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParse(t *testing.T) {
	p, err := Parse([]byte(baseCompose))
	require.NoError(t, err)

	assert.Equal(t, "kamiwaza", p.Name)
	require.Len(t, p.Services, 3)

	crdb := p.Services[0]
	assert.Equal(t, "cockroachdb", crdb.Name)
	assert.Equal(t, "kamiwaza-cockroachdb", crdb.MatchName())
	assert.Equal(t, []PortSpec{
		{HostPort: 26257, ContainerPort: 26257, Protocol: "tcp"},
		{HostPort: 8080, ContainerPort: 8080, Protocol: "tcp"},
	}, crdb.Ports)

	etcd := p.Services[1]
	assert.Equal(t, "etcd", etcd.MatchName())
	assert.Equal(t, []PortSpec{{HostPort: 2379, ContainerPort: 2379, Protocol: "tcp"}}, etcd.Ports)

	traefik := p.Services[2]
	assert.Equal(t, []PortSpec{
		{HostIP: "127.0.0.1", HostPort: 7777, ContainerPort: 80, Protocol: "tcp"},
		{HostIP: "::1", HostPort: 7443, ContainerPort: 443, Protocol: "tcp"},
	}, traefik.Ports)

	assert.Equal(t, []string{"kamiwaza-cockroachdb", "etcd", "traefik"}, p.MatchNames())
}

func TestParseShortPort(t *testing.T) {
	tests := []struct {
		in      string
		want    PortSpec
		ok      bool
		wantErr bool
	}{
		{in: "5432", ok: false},
		{in: "5432:5432", want: PortSpec{HostPort: 5432, ContainerPort: 5432, Protocol: "tcp"}, ok: true},
		{in: "53:53/udp", want: PortSpec{HostPort: 53, ContainerPort: 53, Protocol: "udp"}, ok: true},
		{in: "0.0.0.0:80:8080", want: PortSpec{HostIP: "0.0.0.0", HostPort: 80, ContainerPort: 8080, Protocol: "tcp"}, ok: true},
		{in: "abc:80", wantErr: true},
		{in: "80:abc", wantErr: true},
		{in: "1:2:3:4", wantErr: true},
		{in: "[::1:80", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok, err := ParseShortPort(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestLoad_MergesInOrder(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "docker-compose.yml", baseCompose)
	override := writeFile(t, dir, "docker-compose.override.yml", `
services:
  cockroachdb:
    ports:
      - "36257:26257"
  milvus:
    container_name: kamiwaza-milvus
`)

	p, err := Load([]string{base, override})
	require.NoError(t, err)

	assert.Equal(t, "kamiwaza", p.Name)
	require.Len(t, p.Services, 4)
	assert.Equal(t, "cockroachdb", p.Services[0].Name)
	assert.Equal(t, "kamiwaza-cockroachdb", p.Services[0].ContainerName)
	assert.Equal(t, []PortSpec{{HostPort: 36257, ContainerPort: 26257, Protocol: "tcp"}}, p.Services[0].Ports)
	assert.Equal(t, "milvus", p.Services[2].Name)
	assert.Equal(t, "kamiwaza-milvus", p.Services[2].MatchName())
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load([]string{filepath.Join(dir, "missing.yml")})
	assert.ErrorContains(t, err, "failed to read compose file")

	bad := writeFile(t, dir, "bad.yml", "services: [unclosed")
	_, err = Load([]string{bad})
	assert.ErrorContains(t, err, "failed to parse compose file")

	badPort := writeFile(t, dir, "badport.yml", "services:\n  x:\n    ports:\n      - \"a:b\"\n")
	_, err = Load([]string{badPort})
	assert.ErrorContains(t, err, "service x")
}
