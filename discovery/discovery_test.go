package discovery

import "testing"

func TestKeyDeterministic(t *testing.T) {
	pub := []byte("0123456789abcdef0123456789abcdef")
	a, err := Key(pub)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	b, err := Key(pub)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if a != b {
		t.Fatalf("Key is not deterministic for the same public key")
	}
}

func TestKeyDistinguishesPublicKeys(t *testing.T) {
	a, err := Key([]byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Key([]byte("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"))
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("distinct public keys produced the same discovery key")
	}
}

func TestKeySize(t *testing.T) {
	k, err := Key([]byte("some-public-key-bytes-32-long!!!"))
	if err != nil {
		t.Fatal(err)
	}
	if len(k) != Size {
		t.Fatalf("len(Key()) = %d, want %d", len(k), Size)
	}
}
