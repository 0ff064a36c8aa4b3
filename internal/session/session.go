package session

import (
	"strings"

	"github.com/rudransh-shrivastava/peer-chat/internal/geo"
)

// UnknownName is the remote display name until a name message arrives.
const UnknownName = "Unknown"

// Session is the per-conversation state of one chat client.
type Session struct {
	LocalName      string
	RemoteName     string
	LocalLocation  *geo.Coordinates
	RemoteLocation *geo.Coordinates
}

func New() *Session {
	s := &Session{}
	s.Reset()
	return s
}

// Reset restores the state of a client with no claimed identity.
func (s *Session) Reset() {
	*s = Session{RemoteName: UnknownName}
}

// ForgetRemote drops what is known about the remote peer and keeps the
// local half.
func (s *Session) ForgetRemote() {
	s.RemoteName = UnknownName
	s.RemoteLocation = nil
}

func (s *Session) SetRemoteName(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = UnknownName
	}
	s.RemoteName = name
}

func (s *Session) SetLocalLocation(c geo.Coordinates) {
	s.LocalLocation = &c
}

func (s *Session) SetRemoteLocation(c geo.Coordinates) {
	s.RemoteLocation = &c
}

// Distance reports the distance between both parties once both
// locations are known.
func (s *Session) Distance() (float64, bool) {
	if s.LocalLocation == nil || s.RemoteLocation == nil {
		return 0, false
	}
	return geo.Distance(*s.LocalLocation, *s.RemoteLocation), true
}

// Clone returns a deep copy.
func (s *Session) Clone() Session {
	c := *s
	if s.LocalLocation != nil {
		loc := *s.LocalLocation
		c.LocalLocation = &loc
	}
	if s.RemoteLocation != nil {
		loc := *s.RemoteLocation
		c.RemoteLocation = &loc
	}
	return c
}
