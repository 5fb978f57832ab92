package configutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name  string `json:"name"`
	Limit int    `json:"limit"`
}

func (c *testConfig) Validate() error {
	if c.Limit < 0 {
		return errors.New("limit must not be negative")
	}
	return nil
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.json5"), []byte(`{
		// comments are allowed
		name: "default",
		limit: 5,
	}`), 0666))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.local.json5"), []byte(`{limit: 10}`), 0666))

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "app.json5"))
	require.NoError(t, err)
	require.Equal(t, "default", cfg.Name)
	require.Equal(t, 10, cfg.Limit)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "app.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadConfigValidates(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.json5"), []byte(`{limit: -1}`), 0666))

	_, err := ReadConfig[testConfig](filepath.Join(dir, "app.json5"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "limit must not be negative")
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("CONFIGUTIL_TEST_VALUE", "from-env")

	value := "from-file"
	OverrideFromEnv(&value, "CONFIGUTIL_TEST_VALUE")
	require.Equal(t, "from-env", value)

	OverrideFromEnv(&value, "CONFIGUTIL_TEST_UNSET")
	require.Equal(t, "from-env", value)
}
