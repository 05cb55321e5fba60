package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileService_JsonRoundTrip(t *testing.T) {
	fs := NewFileService()
	path := filepath.Join(t.TempDir(), "nested", "device.json")

	require.NoError(t, fs.WriteJsonFile(path, map[string]string{"device_id": "abc"}))

	var got map[string]string
	require.NoError(t, fs.ReadJsonFile(path, &got))
	assert.Equal(t, "abc", got["device_id"])

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileService_ReadYamlFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("uploader:\n  base_url: http://localhost:8000/dron/\n"), 0o600))

	var got struct {
		Uploader struct {
			BaseURL string `yaml:"base_url"`
		} `yaml:"uploader"`
	}
	require.NoError(t, NewFileService().ReadYamlFile(path, &got))
	assert.Equal(t, "http://localhost:8000/dron/", got.Uploader.BaseURL)
}

func TestFileService_MissingFile(t *testing.T) {
	err := NewFileService().ReadJsonFile(filepath.Join(t.TempDir(), "absent.json"), &struct{}{})
	assert.True(t, os.IsNotExist(err))
}
