package channel

import "testing"

func TestLocalIDZeroReserved(t *testing.T) {
	m := New()
	if _, ok := m.GetByLocalID(0); ok {
		t.Fatalf("local ID 0 should never be allocated")
	}
	id, _ := m.AttachLocal([]byte("dk-a"))
	if id == 0 {
		t.Fatalf("AttachLocal allocated reserved ID 0")
	}
}

func TestLowestUnusedLocalIDReused(t *testing.T) {
	m := New()
	id1, _ := m.AttachLocal([]byte("dk-a"))
	id2, _ := m.AttachLocal([]byte("dk-b"))
	if id1 != 1 || id2 != 2 {
		t.Fatalf("expected sequential IDs 1,2; got %d,%d", id1, id2)
	}

	m.Remove([]byte("dk-a"))
	id3, _ := m.AttachLocal([]byte("dk-c"))
	if id3 != 1 {
		t.Fatalf("expected freed ID 1 to be reused, got %d", id3)
	}
}

func TestConnectedRequiresBothEnds(t *testing.T) {
	m := New()
	dk := []byte("dk")
	_, h := m.AttachLocal(dk)
	if h.Connected() {
		t.Fatalf("channel connected with only a local ID attached")
	}
	m.AttachRemote(dk, 9)
	if !h.Connected() {
		t.Fatalf("channel not connected once both ends attached")
	}
}

func TestGetByRemoteID(t *testing.T) {
	m := New()
	dk := []byte("dk")
	m.AttachRemote(dk, 5)
	h, ok := m.GetByRemoteID(5)
	if !ok || string(h.DiscoveryKey) != "dk" {
		t.Fatalf("GetByRemoteID(5) failed to resolve the attached channel")
	}
	if _, ok := m.GetByRemoteID(6); ok {
		t.Fatalf("GetByRemoteID resolved an unattached remote ID")
	}
}

func TestRemoveFreesBothIDSlots(t *testing.T) {
	m := New()
	dk := []byte("dk")
	localID, _ := m.AttachLocal(dk)
	m.AttachRemote(dk, 3)

	m.Remove(dk)

	if _, ok := m.GetByLocalID(localID); ok {
		t.Fatalf("local ID slot not freed by Remove")
	}
	if _, ok := m.GetByRemoteID(3); ok {
		t.Fatalf("remote ID slot not freed by Remove")
	}
	if _, ok := m.Get(dk); ok {
		t.Fatalf("channel entry not removed")
	}
}
