package lsm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// ErrorCode classifies plugin failures.
type ErrorCode int

const (
	ErrInvalidArgument  ErrorCode = 101
	ErrNoSupport        ErrorCode = 153
	ErrNotFoundSystem   ErrorCode = 208
	ErrNotFoundVolume   ErrorCode = 205
	ErrNotFoundDisk     ErrorCode = 212
	ErrPermissionDenied ErrorCode = 400
	ErrPluginNotExist   ErrorCode = 311
	ErrTimeout          ErrorCode = 502
	ErrPluginBug        ErrorCode = 2
)

// Error is a protocol-level failure reported by a plugin.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lsm error %d: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("lsm error %d: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errno is the errno a caller reports for e, or 0 when the code has no
// natural one and the wrapped error should decide.
func (e *Error) Errno() unix.Errno {
	switch e.Code {
	case ErrInvalidArgument, ErrPluginNotExist:
		return unix.EINVAL
	case ErrNoSupport:
		return unix.EOPNOTSUPP
	case ErrNotFoundSystem, ErrNotFoundVolume, ErrNotFoundDisk:
		return unix.ENODEV
	case ErrPermissionDenied:
		return unix.EACCES
	case ErrTimeout:
		return unix.ETIMEDOUT
	}
	return 0
}

// Errorf builds an *Error.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// Connector opens sessions for one URI scheme.
type Connector interface {
	Connect(ctx context.Context, uri *url.URL, password string, timeout time.Duration) (Session, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, uri *url.URL, password string, timeout time.Duration) (Session, error)

func (f ConnectorFunc) Connect(ctx context.Context, uri *url.URL, password string, timeout time.Duration) (Session, error) {
	return f(ctx, uri, password, timeout)
}

// Registry maps URI schemes to plugins.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Connector
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Connector)}
}

// Register installs c for scheme, replacing any earlier plugin.
func (r *Registry) Register(scheme string, c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[scheme] = c
}

// Schemes lists the registered URI schemes.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemes := make([]string, 0, len(r.plugins))
	for s := range r.plugins {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

// Connect parses rawURI and opens a session with the plugin for its scheme.
func (r *Registry) Connect(ctx context.Context, rawURI, password string, timeout time.Duration) (Session, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return nil, &Error{Code: ErrInvalidArgument, Message: "malformed uri", Err: err}
	}
	if u.Scheme == "" {
		return nil, Errorf(ErrInvalidArgument, "uri %q has no plugin scheme", rawURI)
	}

	r.mu.RLock()
	c, ok := r.plugins[u.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, Errorf(ErrPluginNotExist, "no plugin for scheme %q", u.Scheme)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return c.Connect(ctx, u, password, timeout)
}
