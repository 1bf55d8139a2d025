package sim

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sigreer/blkdevctl/internal/lsm"
)

// Scheme is the URI scheme served by this plugin.
const Scheme = "sim"

// ErrSessionClosed is returned by calls on a closed session.
var ErrSessionClosed = errors.New("sim session closed")

// Connector opens sessions against a state file named by the URI path or by
// its statefile query parameter (sim:///var/lib/x.db, sim://?statefile=x.db).
// A URI naming neither uses State, then DefaultPath.
type Connector struct {
	State string
	Log   logrus.FieldLogger
}

// StatePath returns the state file named by uri.
func StatePath(uri *url.URL) string {
	if p := uri.Query().Get("statefile"); p != "" {
		return p
	}
	if uri.Path != "" {
		return uri.Path
	}
	return DefaultPath
}

func (c *Connector) Connect(ctx context.Context, uri *url.URL, password string, timeout time.Duration) (lsm.Session, error) {
	path := StatePath(uri)
	if path == DefaultPath && c.State != "" {
		path = c.State
	}
	store, err := Open(path)
	if err != nil {
		return nil, &lsm.Error{Code: lsm.ErrPluginBug, Message: "open state", Err: err}
	}

	want, err := store.password(ctx)
	if err != nil {
		store.Close()
		return nil, &lsm.Error{Code: lsm.ErrPluginBug, Message: "read password", Err: err}
	}
	if want != "" && want != password {
		store.Close()
		return nil, lsm.Errorf(lsm.ErrPermissionDenied, "bad password for %s", path)
	}

	log := c.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithFields(logrus.Fields{"state": path}).Debug("sim session opened")

	return &session{store: store, timeout: timeout, log: log}, nil
}

type session struct {
	store   *Store
	timeout time.Duration
	log     logrus.FieldLogger
}

func (s *session) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if s.store == nil {
		return nil, nil, ErrSessionClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return ctx, cancel, nil
}

func (s *session) Systems(ctx context.Context) ([]lsm.System, error) {
	ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return s.store.Systems(ctx)
}

func (s *session) Capabilities(ctx context.Context, sys lsm.System) (lsm.CapabilitySet, error) {
	ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return s.store.Capabilities(ctx, sys.ID)
}

func (s *session) Volumes(ctx context.Context, systemID string) ([]lsm.Volume, error) {
	ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return s.store.Volumes(ctx, systemID)
}

func (s *session) Disks(ctx context.Context, systemID string) ([]lsm.Disk, error) {
	ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return s.store.Disks(ctx, systemID)
}

func (s *session) VolumeIdentLEDOn(ctx context.Context, vol lsm.Volume) error {
	return s.setLED(ctx, vol, true)
}

func (s *session) VolumeIdentLEDOff(ctx context.Context, vol lsm.Volume) error {
	return s.setLED(ctx, vol, false)
}

func (s *session) setLED(ctx context.Context, vol lsm.Volume, on bool) error {
	ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	s.log.WithFields(logrus.Fields{"system": vol.SystemID, "volume": vol.ID, "on": on}).Info("set volume locate led")
	return s.store.SetVolumeLED(ctx, vol, on)
}

func (s *session) VolumeIdentLEDStatus(ctx context.Context, vol lsm.Volume) (lsm.LEDStatus, error) {
	ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return lsm.LEDUnknown, err
	}
	defer cancel()
	return s.store.VolumeLED(ctx, vol)
}

func (s *session) Close() error {
	if s.store == nil {
		return ErrSessionClosed
	}
	err := s.store.Close()
	s.store = nil
	return err
}
