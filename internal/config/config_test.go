package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctiproxy.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "amisecret: s3cret\n"))
	require.NoError(t, err)

	assert.Equal(t, "localhost:5038", cfg.AMIAddr)
	assert.Equal(t, 30*time.Second, cfg.ActionTimeout)
	assert.Equal(t, 300*time.Millisecond, cfg.DTMFDelay)
	assert.Equal(t, "/var/spool/asterisk/monitor", cfg.RecordPath)
	assert.Equal(t, "pg", cfg.DBDriver)
	assert.Equal(t, "*45", cfg.QueueLogonCode)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeFile(t, `
amiaddr: pbx.local:5038
amiuser: cti
amisecret: fromfile
actiontimeout: 5s
dbdriver: none
structfile: /etc/ctiproxy/structure.yml
`)
	t.Setenv("CTIPROXY_AMISECRET", "fromenv")
	t.Setenv("CTIPROXY_DTMFDELAY", "150ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pbx.local:5038", cfg.AMIAddr)
	assert.Equal(t, "cti", cfg.AMIUser)
	assert.Equal(t, "fromenv", cfg.AMISecret)
	assert.Equal(t, 5*time.Second, cfg.ActionTimeout)
	assert.Equal(t, 150*time.Millisecond, cfg.DTMFDelay)
	assert.Equal(t, DBDriverNone, cfg.DBDriver)
	assert.Equal(t, "/etc/ctiproxy/structure.yml", cfg.StructFile)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "amiuser: cti\n"))
	assert.ErrorContains(t, err, "amisecret")
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBHost: "db", DBPort: 5433, DBName: "cti", DBUser: "u", DBPassword: "p"}
	assert.Equal(t, "host=db port=5433 dbname=cti user=u password=p sslmode=disable", cfg.DSN())
}
