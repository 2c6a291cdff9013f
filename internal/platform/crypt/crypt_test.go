package crypt

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := New("test-secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	enc, err := c.Encrypt("token-value-123")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if enc == "token-value-123" {
		t.Fatal("ciphertext equals plaintext")
	}
	dec, err := c.Decrypt(enc)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if dec != "token-value-123" {
		t.Errorf("decrypted = %q", dec)
	}
}

func TestDecryptAcrossInstances(t *testing.T) {
	c1, err := New("shared")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c2, err := New("shared")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	enc, err := c1.Encrypt("value")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	dec, err := c2.Decrypt(enc)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if dec != "value" {
		t.Errorf("decrypted = %q", dec)
	}
}

func TestEmptySecretRejected(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestDecryptGarbage(t *testing.T) {
	c, err := New("secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Decrypt("not-base64!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	if _, err := c.Decrypt("aGVsbG8="); err == nil {
		t.Error("expected error for truncated ciphertext")
	}
}
