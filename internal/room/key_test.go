package room

import "testing"

func TestPrivateKey_Symmetric(t *testing.T) {
	k1 := PrivateKey("u1", "u2")
	k2 := PrivateKey("u2", "u1")

	if k1 != k2 {
		t.Errorf("key should not depend on argument order: %q vs %q", k1, k2)
	}
	if k1 != "private:u1:u2" {
		t.Errorf("expected canonical key %q, got %q", "private:u1:u2", k1)
	}
}

func TestIsPrivate(t *testing.T) {
	if !IsPrivate(PrivateKey("a", "b")) {
		t.Error("derived private key should be recognized as private")
	}
	if IsPrivate(Global) {
		t.Error("global room should not be private")
	}
	if IsPrivate("lounge") {
		t.Error("named room should not be private")
	}
}
