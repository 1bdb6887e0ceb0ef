package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewCipherKeyValidation(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		errText string
	}{
		{"empty key", "", "encryption key is empty"},
		{"invalid base64", "not-valid-base64!@#$", "base64 decode failed"},
		{"key too short", base64.StdEncoding.EncodeToString(make([]byte, 16)), "must be 32 bytes"},
		{"key too long", base64.StdEncoding.EncodeToString(make([]byte, 64)), "must be 32 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCipher(tt.key); err == nil || !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("NewCipher error = %v, want %q", err, tt.errText)
			}
		})
	}

	if c, err := NewCipher(base64.StdEncoding.EncodeToString(make([]byte, 32))); err != nil || c == nil {
		t.Errorf("NewCipher with a valid key = %v, %v", c, err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	for _, plaintext := range []string{
		"ya29.a0AfH6SMBx-access-token",
		"1//0gRefreshToken",
		strings.Repeat("a", 1000),
	} {
		sealed, err := c.EncryptString(plaintext)
		if err != nil {
			t.Fatalf("EncryptString: %v", err)
		}
		if sealed == plaintext {
			t.Fatal("ciphertext equals plaintext")
		}
		if _, err := base64.StdEncoding.DecodeString(sealed); err != nil {
			t.Errorf("ciphertext is not valid base64: %v", err)
		}
		got, err := c.DecryptString(sealed)
		if err != nil {
			t.Fatalf("DecryptString: %v", err)
		}
		if got != plaintext {
			t.Errorf("round trip = %q, want %q", got, plaintext)
		}
	}

	// Absent tokens pass through unchanged.
	if sealed, err := c.EncryptString(""); err != nil || sealed != "" {
		t.Errorf("EncryptString(empty) = %q, %v", sealed, err)
	}
	if plain, err := c.DecryptString(""); err != nil || plain != "" {
		t.Errorf("DecryptString(empty) = %q, %v", plain, err)
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	c, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	first, err := c.EncryptString("same token")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	second, err := c.EncryptString("same token")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	if first == second {
		t.Error("identical ciphertexts for the same plaintext")
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	c, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	sealed, err := c.EncryptString("sensitive token")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	raw[len(raw)/2] ^= 0x01
	if _, err := c.DecryptString(base64.StdEncoding.EncodeToString(raw)); err == nil {
		t.Error("tampered ciphertext decrypted")
	}

	if _, err := c.DecryptString("not-valid-base64!@#"); err == nil || !strings.Contains(err.Error(), "base64 decode failed") {
		t.Errorf("garbage input error = %v", err)
	}
	if _, err := c.DecryptString(base64.StdEncoding.EncodeToString([]byte{1, 2, 3})); err == nil || !strings.Contains(err.Error(), "too short") {
		t.Errorf("truncated input error = %v", err)
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	c1, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	c2, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	sealed, err := c1.EncryptString("secret")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	if _, err := c2.DecryptString(sealed); err == nil {
		t.Error("decryption succeeded with the wrong key")
	}
}
