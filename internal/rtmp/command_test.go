package rtmp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRoundTripConnect(t *testing.T) {
	obj, err := EncodeObject(
		KeyValue{Key: "app", Value: "live"},
		KeyValue{Key: "tcUrl", Value: "rtmp://localhost/live"},
	)
	require.NoError(t, err)

	body, err := EncodeCommand(CommandConnect, 1, obj)
	require.NoError(t, err)

	cmd, err := DecodeCommand(body)
	require.NoError(t, err)
	assert.Equal(t, CommandConnect, cmd.Name)
	assert.Equal(t, float64(1), cmd.TransactionID)
	require.NotNil(t, cmd.Object)

	app, ok := GetString(cmd.Object, "app")
	assert.True(t, ok)
	assert.Equal(t, "live", app)
}

func TestCommandRoundTripPublish(t *testing.T) {
	body, err := EncodeCommand(CommandPublish, 3, nil, "mystream", "live")
	require.NoError(t, err)

	cmd, err := DecodeCommand(body)
	require.NoError(t, err)
	assert.Equal(t, CommandPublish, cmd.Name)
	assert.Equal(t, float64(3), cmd.TransactionID)
	require.Len(t, cmd.Args, 2)
	assert.Equal(t, "mystream", cmd.Args[0])
	assert.Equal(t, "live", cmd.Args[1])
}

func TestGetStringMissingKey(t *testing.T) {
	obj, err := EncodeObject(KeyValue{Key: "app", Value: "live"})
	require.NoError(t, err)
	_, ok := GetString(obj, "tcUrl")
	assert.False(t, ok)
}

func TestDecodeCommandMalformed(t *testing.T) {
	_, err := DecodeCommand([]byte{0xff})
	assert.Error(t, err)
}
