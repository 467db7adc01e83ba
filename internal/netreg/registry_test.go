package netreg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
networks:
  - uuid: net-a
    family: v4
    subnet: "10.0.0.0/30"
    start_ip: "10.0.0.1"
    end_ip: "10.0.0.2"
    nic_tag: external
  - uuid: net-b
    family: v4
    subnet: "10.0.1.0/30"
    start_ip: "10.0.1.1"
    end_ip: "10.0.1.2"
    nic_tag: external
pools:
  - name: pool-ext
    members: [net-a, net-b]
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "networks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))
	return path
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	reg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	_, ok := reg.Network("net-a")
	assert.False(t, ok)
}

func TestLoad_ParsesNetworksAndPools(t *testing.T) {
	path := writeSample(t)
	reg, err := Load(path)
	require.NoError(t, err)

	net, ok := reg.Network("net-a")
	require.True(t, ok)
	assert.Equal(t, "net-a", net.UUID)

	members, ok := reg.Pool("pool-ext")
	require.True(t, ok)
	require.Len(t, members, 2)
	assert.Equal(t, "net-a", members[0].UUID)
	assert.Equal(t, "net-b", members[1].UUID)
}

func TestLookup_UnknownReturnsNilNoError(t *testing.T) {
	reg := Empty()
	net, err := reg.Lookup("missing")
	require.NoError(t, err)
	assert.Nil(t, net)
}

func TestLoad_UnknownPoolMemberFails(t *testing.T) {
	bad := `
networks:
  - uuid: net-a
    family: v4
    subnet: "10.0.0.0/30"
    start_ip: "10.0.0.1"
    end_ip: "10.0.0.2"
pools:
  - name: pool-ext
    members: [net-missing]
`
	path := filepath.Join(t.TempDir(), "networks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}
