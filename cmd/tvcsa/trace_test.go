package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observe-l/tvcsa/internal/config"
)

func TestSummariseTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	lines := `{"ts":1,"service":7,"kind":"csa","fill":37,"advanced":37,"passes":5}
{"ts":2,"service":7,"kind":"csa","fill":32,"advanced":32,"passes":1}
{"ts":3,"service":3,"kind":"csa","fill":10,"advanced":10,"passes":1}
`
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	var out bytes.Buffer
	require.NoError(t, summariseTrace(path, &out))
	rows := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"3", "1", "10", "10.0", "1"}, strings.Fields(rows[1]))
	assert.Equal(t, []string{"7", "2", "69", "34.5", "5"}, strings.Fields(rows[2]))
}

func TestServiceInfoFromConfig(t *testing.T) {
	info := serviceInfo(config.ServiceConfig{
		SID: 5, TSID: 9, ForceCAID: "0x0b00",
		CAIDs: []config.CAIDConfig{{ID: "0x0100", Provider: 3}},
		PIDs:  []uint16{0x100},
	})
	assert.Equal(t, uint16(0x0b00), info.ForceCAID)
	require.Len(t, info.CAIDs, 1)
	assert.Equal(t, uint16(0x0100), info.CAIDs[0].ID)
	assert.Equal(t, uint32(3), info.CAIDs[0].Provider)
}

func TestConstCWClientsFromConfig(t *testing.T) {
	clients, err := constCWClients([]config.ConstCWConfig{
		{Name: "a", SID: 1, KeyEven: "11 22 33 66 44 55 66 ff", KeyOdd: "00"},
		{Name: "b", Kind: "aes128-ecb", SID: 2},
	}, nil)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "constcw-a", clients[0].Name())

	_, err = constCWClients([]config.ConstCWConfig{{Name: "c", Kind: "rot13"}}, nil)
	assert.Error(t, err)
}
