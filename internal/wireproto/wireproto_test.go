package wireproto

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvanderweele/vzfs/internal/operator"
)

func TestDecodeCommandUnknownKind(t *testing.T) {
	_, err := DecodeCommand(map[string]interface{}{"kind": "bogus"})
	require.Error(t, err)
}

func TestDecodeCommandInit(t *testing.T) {
	cmd, err := DecodeCommand(map[string]interface{}{
		"kind":           "init",
		"filesystemName": "default",
		"version":        float64(1),
	})
	require.NoError(t, err)
	assert.Equal(t, operator.Init, cmd.Kind)
	assert.Equal(t, "default", cmd.Init.FilesystemName)
	assert.Equal(t, 1, cmd.Init.Version)
}

func TestDecodeCommandCreateFile(t *testing.T) {
	cmd, err := DecodeCommand(map[string]interface{}{
		"kind":       "createFile",
		"name":       "a.txt",
		"parentPath": "/",
		"content":    "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, operator.CreateFile, cmd.Kind)
	assert.Equal(t, "a.txt", cmd.CreateFile.Name)
	assert.Equal(t, "/", cmd.CreateFile.ParentPath)
	assert.Equal(t, []byte("hello"), cmd.CreateFile.Content)
}

func TestDecodeCommandGetDirectoryRecordTracksPresence(t *testing.T) {
	cmd, err := DecodeCommand(map[string]interface{}{"kind": "getDirectoryRecord"})
	require.NoError(t, err)
	assert.False(t, cmd.GetDirectoryRecord.Present)

	cmd, err = DecodeCommand(map[string]interface{}{"kind": "getDirectoryRecord", "path": "/a"})
	require.NoError(t, err)
	assert.True(t, cmd.GetDirectoryRecord.Present)
	assert.Equal(t, "/a", cmd.GetDirectoryRecord.Path)
}

func TestDecodeCommandNoPayloadKinds(t *testing.T) {
	for _, kind := range []string{"listFilesystems", "ripFilesystemToJSON", "close"} {
		cmd, err := DecodeCommand(map[string]interface{}{"kind": kind})
		require.NoError(t, err)
		assert.NotZero(t, cmd.Kind)
	}
}

func TestReplyToWireSuccess(t *testing.T) {
	wire := ReplyToWire(operator.Reply{Kind: operator.ReadFile, Data: "hello"})
	assert.Equal(t, operator.ReadFile.String(), wire["kind"])
	assert.Equal(t, true, wire["ok"])
	assert.Equal(t, "hello", wire["data"])
	assert.NotContains(t, wire, "error")
}

func TestReplyToWireError(t *testing.T) {
	wire := ReplyToWire(operator.Reply{Kind: operator.ReadFile, Err: errors.New("boom")})
	assert.Equal(t, false, wire["ok"])
	assert.Equal(t, "boom", wire["error"])
	assert.NotContains(t, wire, "data")
}
