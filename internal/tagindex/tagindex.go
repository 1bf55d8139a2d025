// Package tagindex looks up block devices by filesystem or partition tag
// (UUID, PARTUUID, LABEL, PARTLABEL).
package tagindex

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Common errors
var (
	ErrNotFound       = errors.New("no device carries tag")
	ErrClosed         = errors.New("tag index cache closed")
	ErrUnknownTag     = errors.New("unknown tag")
	ErrUnknownBackend = errors.New("unknown tag index backend")
)

// Supported tags
const (
	TagUUID      = "UUID"
	TagPartUUID  = "PARTUUID"
	TagLabel     = "LABEL"
	TagPartLabel = "PARTLABEL"
)

// Index hands out a snapshot of the tag to device mapping. Each lookup opens
// its own Cache and closes it when done.
type Index interface {
	Open(ctx context.Context) (Cache, error)
}

// Cache is one snapshot of the index.
type Cache interface {
	// FindDevice returns the device node path carrying tag=value.
	FindDevice(ctx context.Context, tag, value string) (string, error)
	Close() error
}

// New returns the backend named by kind ("bydisk" or "lsblk").
func New(kind, root string) (Index, error) {
	switch kind {
	case "", "bydisk":
		return NewByDisk(root), nil
	case "lsblk":
		return &Lsblk{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, kind)
}

// snapshot is the in-memory cache shared by the backends.
type snapshot struct {
	tags   map[string]map[string]string // tag -> value -> device
	closed bool
}

func newSnapshot() *snapshot {
	return &snapshot{tags: make(map[string]map[string]string)}
}

func (s *snapshot) add(tag, value, device string) {
	if value == "" || device == "" {
		return
	}
	if _, ok := s.tags[tag]; !ok {
		s.tags[tag] = make(map[string]string)
	}
	// value comparisons are case-insensitive for UUIDs
	if tag == TagUUID || tag == TagPartUUID {
		value = strings.ToLower(value)
	}
	s.tags[tag][value] = device
}

func (s *snapshot) FindDevice(_ context.Context, tag, value string) (string, error) {
	if s.closed {
		return "", ErrClosed
	}
	tag = strings.ToUpper(tag)
	switch tag {
	case TagUUID, TagPartUUID:
		value = strings.ToLower(value)
	case TagLabel, TagPartLabel:
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}
	dev, ok := s.tags[tag][value]
	if !ok {
		return "", fmt.Errorf("%w %s=%s", ErrNotFound, tag, value)
	}
	return dev, nil
}

func (s *snapshot) Close() error {
	s.tags = nil
	s.closed = true
	return nil
}

// unescape decodes the \xNN sequences udev uses in by-label link names.
func unescape(name string) string {
	if !strings.Contains(name, `\x`) {
		return name
	}
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		if name[i] == '\\' && i+3 < len(name) && name[i+1] == 'x' {
			if c, err := strconv.ParseUint(name[i+2:i+4], 16, 8); err == nil {
				b.WriteByte(byte(c))
				i += 3
				continue
			}
		}
		b.WriteByte(name[i])
	}
	return b.String()
}
