package config

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFillsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
engine:
  width: 64
input:
  udp: 239.1.1.1:1234
  fec:
    enabled: true
    repair: 16
services:
  - sid: 100
    caids:
      - id: Conax
    pids: [256, 257]
`))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Engine.Width)
	assert.Equal(t, 1, cfg.Engine.ClusterMultiple)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "-", cfg.Input.Path)
	assert.Equal(t, "239.1.1.1:1234", cfg.Input.UDP)
	assert.Equal(t, FECConfig{Enabled: true, Packets: 64, SymbolSize: 1316, Repair: 16}, cfg.Input.FEC)
	require.Len(t, cfg.Services, 1)
	assert.Equal(t, []uint16{256, 257}, cfg.Services[0].PIDs)
	assert.Equal(t, "Conax", cfg.Services[0].CAIDs[0].ID)
}

func TestParseRejects(t *testing.T) {
	for name, doc := range map[string]string{
		"width":         "engine:\n  width: 48\n",
		"duplicate sid": "services:\n  - {sid: 1, pids: [1]}\n  - {sid: 1, pids: [2]}\n",
		"shared pid":    "services:\n  - {sid: 1, pids: [1]}\n  - {sid: 2, pids: [1]}\n",
		"no pids":       "services:\n  - {sid: 1}\n",
		"unnamed cw":    "constCW:\n  - {sid: 1, keyEven: '00', keyOdd: '00'}\n",
		"not yaml":      "engine: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestWriteReadsBack(t *testing.T) {
	cfg := Default()
	cfg.ConstCW = []ConstCWConfig{{Name: "a", Kind: "csa", SID: 3, KeyEven: "00", KeyOdd: "11"}}
	var buf bytes.Buffer
	require.NoError(t, cfg.Write(&buf))
	got, err := Parse(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, cfg, *got)
}
