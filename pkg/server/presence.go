package server

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/photonchat/photon/pkg/protocol"
	pb "github.com/photonchat/photon/pkg/protocol/pb"
)

// Presence tracks every open session and which usernames are logged in.
// At most one session holds a given username.
type Presence struct {
	mu       sync.RWMutex
	sessions map[string]*Session // connection id -> session
	names    map[string]*Session // username -> authenticated session
	logger   *slog.Logger
}

// NewPresence creates an empty registry.
func NewPresence(logger *slog.Logger) *Presence {
	return &Presence{
		sessions: make(map[string]*Session),
		names:    make(map[string]*Session),
		logger:   logger,
	}
}

// Add registers a freshly accepted connection.
func (p *Presence) Add(s *Session) {
	p.mu.Lock()
	p.sessions[s.ID] = s
	p.mu.Unlock()
}

// Claim binds name to s. It fails with ErrAlreadyLoggedIn if another live
// session holds the name.
func (p *Presence) Claim(s *Session, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if holder, ok := p.names[name]; ok && holder != s {
		return ErrAlreadyLoggedIn
	}
	p.names[name] = s
	return nil
}

// IsOnline reports whether a live session holds name.
func (p *Presence) IsOnline(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.names[name]
	return ok
}

// Lookup returns the session holding name.
func (p *Presence) Lookup(name string) (*Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.names[name]
	return s, ok
}

// Remove unregisters s and releases its name. It reports whether s was
// logged in.
func (p *Presence) Remove(s *Session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, s.ID)
	name := s.Username()
	if name != "" && p.names[name] == s {
		delete(p.names, name)
		return true
	}
	return false
}

// Roster returns the logged-in usernames in byte-wise order.
func (p *Presence) Roster() []string {
	p.mu.RLock()
	names := make([]string, 0, len(p.names))
	for name := range p.names {
		names = append(names, name)
	}
	p.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Count returns the number of open connections, logged in or not.
func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

// All returns a snapshot of every open session.
func (p *Presence) All() []*Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		out = append(out, s)
	}
	return out
}

func (p *Presence) active() []*Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Session, 0, len(p.names))
	for _, s := range p.names {
		if s.State() == StateActive {
			out = append(out, s)
		}
	}
	return out
}

// Broadcast delivers pkt to every Active session. The packet is encoded once;
// a failed write to one session is logged and does not stop the fan-out.
//
// Writes are sequential. A stalled peer delays the peers after it by at most
// writeTimeout, then its session is closed.
func (p *Presence) Broadcast(pkt *pb.Packet) {
	data, err := protocol.Encode(pkt)
	if err != nil {
		p.logger.Error("broadcast encode failed", "type", pkt.Type, "err", err)
		return
	}
	for _, s := range p.active() {
		if err := deliver(s, pkt, data); err != nil {
			p.logger.Debug("broadcast write failed", "conn", s.ID, "user", s.Username(), "err", err)
		}
	}
}

// SendTo delivers pkt to the named Active sessions, each at most once.
func (p *Presence) SendTo(pkt *pb.Packet, names ...string) {
	data, err := protocol.Encode(pkt)
	if err != nil {
		p.logger.Error("send encode failed", "type", pkt.Type, "err", err)
		return
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		s, ok := p.Lookup(name)
		if !ok || s.State() != StateActive {
			continue
		}
		if err := deliver(s, pkt, data); err != nil {
			p.logger.Debug("targeted write failed", "conn", s.ID, "user", name, "err", err)
		}
	}
}

// deliver writes the encoded pkt to s. A chat message the session already
// got in its history replay is not sent again.
func deliver(s *Session, pkt *pb.Packet, data []byte) error {
	if pkt.Type == pb.TypeMessage && pkt.Message != nil {
		return s.sendMessageFrame(data, pkt.Message.ID)
	}
	return s.sendFrame(data)
}
