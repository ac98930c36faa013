// Package channel implements the dual local/remote channel ID map that
// binds a discovery key to one logical multiplexed channel. Each side
// allocates IDs in its own space; a channel is connected only once both
// ends have attached.
package channel

import "sync"

// localReserved is the local channel ID reserved for stream-level
// extensions; it is never allocated to an application channel.
const localReserved = 0

// Handle is one logical channel: a discovery key with its attached
// local and/or remote IDs.
type Handle struct {
	DiscoveryKey []byte
	LocalID      *uint32
	RemoteID     *uint32
}

// Connected reports whether both ends of the channel have attached.
func (h *Handle) Connected() bool {
	return h.LocalID != nil && h.RemoteID != nil
}

// Map is the bidirectional channel registry for one protocol session.
type Map struct {
	mu        sync.Mutex
	channels  map[string]*Handle // keyed by discovery key
	localIDs  []*Handle          // index 0 reserved
	remoteIDs []*Handle
}

// New creates an empty channel map with local ID 0 reserved.
func New() *Map {
	return &Map{
		channels: make(map[string]*Handle),
		localIDs: []*Handle{nil},
	}
}

// AttachLocal allocates the lowest unused local ID (starting at 1) to the
// channel for discoveryKey, creating it if necessary, and returns the
// allocated ID.
func (m *Map) AttachLocal(discoveryKey []byte) (uint32, *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.getOrCreate(discoveryKey)
	id := m.allocLocal(h)
	h.LocalID = &id
	return id, h
}

// AttachRemote records that the peer addressed this channel with
// remoteID.
func (m *Map) AttachRemote(discoveryKey []byte, remoteID uint32) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.getOrCreate(discoveryKey)
	h.RemoteID = &remoteID
	for uint32(len(m.remoteIDs)) <= remoteID {
		m.remoteIDs = append(m.remoteIDs, nil)
	}
	m.remoteIDs[remoteID] = h
	return h
}

func (m *Map) getOrCreate(discoveryKey []byte) *Handle {
	key := string(discoveryKey)
	if h, ok := m.channels[key]; ok {
		return h
	}
	h := &Handle{DiscoveryKey: append([]byte(nil), discoveryKey...)}
	m.channels[key] = h
	return h
}

func (m *Map) allocLocal(h *Handle) uint32 {
	for i := 1; i < len(m.localIDs); i++ {
		if m.localIDs[i] == nil {
			m.localIDs[i] = h
			return uint32(i)
		}
	}
	m.localIDs = append(m.localIDs, h)
	return uint32(len(m.localIDs) - 1)
}

// Get returns the channel handle for a discovery key.
func (m *Map) Get(discoveryKey []byte) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.channels[string(discoveryKey)]
	return h, ok
}

// GetByLocalID returns the channel handle for a local ID, if allocated.
func (m *Map) GetByLocalID(id uint32) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(id) >= len(m.localIDs) || m.localIDs[id] == nil {
		return nil, false
	}
	return m.localIDs[id], true
}

// GetByRemoteID returns the channel handle for a remote ID, if known.
func (m *Map) GetByRemoteID(id uint32) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(id) >= len(m.remoteIDs) || m.remoteIDs[id] == nil {
		return nil, false
	}
	return m.remoteIDs[id], true
}

// Remove clears every index entry for discoveryKey, freeing its local and
// remote IDs for reuse.
func (m *Map) Remove(discoveryKey []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(discoveryKey)
	h, ok := m.channels[key]
	if !ok {
		return
	}
	if h.LocalID != nil && int(*h.LocalID) < len(m.localIDs) {
		m.localIDs[*h.LocalID] = nil
	}
	if h.RemoteID != nil && int(*h.RemoteID) < len(m.remoteIDs) {
		m.remoteIDs[*h.RemoteID] = nil
	}
	delete(m.channels, key)
}
