package lsm

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSystemMode(t *testing.T) {
	for _, mode := range []SystemMode{ModeNoSupport, ModeHardwareRAID, ModeHBA} {
		assert.Equal(t, mode, ParseSystemMode(mode.String()))
	}
	assert.Equal(t, ModeHardwareRAID, ParseSystemMode("RAID"))
	assert.Equal(t, ModeNoSupport, ParseSystemMode("jbod"))
}

func TestCapabilitySet(t *testing.T) {
	caps := NewCapabilitySet(CapVolumes, CapSysModeGet)

	assert.True(t, caps.Supported(CapSysModeGet))
	assert.True(t, caps.Supported(CapSysModeGet, CapVolumes))
	assert.False(t, caps.Supported(CapVolumes, CapVolumeLED))
	assert.True(t, caps.Supported())
	assert.Equal(t, []string{"sys_mode_get", "volumes"}, caps.Names())

	var empty CapabilitySet
	assert.False(t, empty.Supported(CapDisks))
	assert.Empty(t, empty.Names())
}

func TestRegistryConnect(t *testing.T) {
	var gotURI *url.URL
	var gotPassword string
	var gotTimeout time.Duration

	reg := NewRegistry()
	reg.Register("fake", ConnectorFunc(func(_ context.Context, uri *url.URL, password string, timeout time.Duration) (Session, error) {
		gotURI, gotPassword, gotTimeout = uri, password, timeout
		return nil, nil
	}))
	assert.Equal(t, []string{"fake"}, reg.Schemes())

	_, err := reg.Connect(context.Background(), "fake://host/path?x=1", "pw", 0)
	require.NoError(t, err)
	assert.Equal(t, "host", gotURI.Host)
	assert.Equal(t, "pw", gotPassword)
	assert.Equal(t, DefaultTimeout, gotTimeout)

	_, err = reg.Connect(context.Background(), "fake://", "", time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, gotTimeout)
}

func TestRegistryConnectErrors(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Connect(context.Background(), "nothing://x", "", 0)
	assert.True(t, IsCode(err, ErrPluginNotExist))

	_, err = reg.Connect(context.Background(), "/no/scheme", "", 0)
	assert.True(t, IsCode(err, ErrInvalidArgument))

	_, err = reg.Connect(context.Background(), "bad://%zz", "", 0)
	assert.True(t, IsCode(err, ErrInvalidArgument))
}

func TestError(t *testing.T) {
	cause := errors.New("boom")
	err := &Error{Code: ErrTimeout, Message: "storcli", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "lsm error 502: storcli: boom", err.Error())
	assert.Equal(t, "lsm error 153: no mode", Errorf(ErrNoSupport, "no %s", "mode").Error())
	assert.False(t, IsCode(cause, ErrTimeout))
}

func TestErrorErrno(t *testing.T) {
	tests := map[ErrorCode]unix.Errno{
		ErrInvalidArgument:  unix.EINVAL,
		ErrPluginNotExist:   unix.EINVAL,
		ErrNoSupport:        unix.EOPNOTSUPP,
		ErrNotFoundSystem:   unix.ENODEV,
		ErrNotFoundVolume:   unix.ENODEV,
		ErrNotFoundDisk:     unix.ENODEV,
		ErrPermissionDenied: unix.EACCES,
		ErrTimeout:          unix.ETIMEDOUT,
		ErrPluginBug:        0,
	}
	for code, want := range tests {
		assert.Equal(t, want, Errorf(code, "x").Errno(), "code %d", code)
	}
}
