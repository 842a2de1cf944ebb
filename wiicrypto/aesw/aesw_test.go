package aesw

import (
	"bytes"
	"crypto/aes"
	"io"
	"strings"
	"testing"
)

var testKey = bytes.Repeat([]byte{0x42}, KeySize)

func TestNewCipherRejectsBadKeySize(t *testing.T) {
	if _, err := NewCipher(make([]byte, KeySize-1)); err == nil {
		t.Error("NewCipher(short key): want error, got nil")
	}
	if _, err := NewCipher(testKey); err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
}

func TestBlockRoundTrip(t *testing.T) {
	block, err := NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	iv := make([]byte, aes.BlockSize)

	plain := bytes.Repeat([]byte("0123456789abcdef"), 3)
	buf := append([]byte(nil), plain...)

	if err := EncryptBlock(buf, block, iv); err != nil {
		t.Fatalf("EncryptBlock: %v", err)
	}
	if bytes.Equal(buf, plain) {
		t.Error("EncryptBlock left the buffer unchanged")
	}
	if err := DecryptBlock(buf, block, iv); err != nil {
		t.Fatalf("DecryptBlock: %v", err)
	}
	if !bytes.Equal(buf, plain) {
		t.Errorf("round trip = %x, want %x", buf, plain)
	}
}

func TestBlockRejectsUnalignedLength(t *testing.T) {
	block, err := NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	iv := make([]byte, aes.BlockSize)
	buf := make([]byte, aes.BlockSize+1)

	if err := EncryptBlock(buf, block, iv); err == nil {
		t.Error("EncryptBlock(unaligned): want error, got nil")
	}
	if err := DecryptBlock(buf, block, iv); err == nil {
		t.Error("DecryptBlock(unaligned): want error, got nil")
	}
}

func TestReaderWriterRoundTrip(t *testing.T) {
	block, err := NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	iv := make([]byte, aes.BlockSize)
	plain := []byte(strings.Repeat("the quick brown fox", 4))

	var ciphertext bytes.Buffer
	w := EncryptWriter(&ciphertext, block, iv)
	if _, err := w.Write(plain); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r := DecryptReader(bytes.NewReader(ciphertext.Bytes()), block, iv)
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got[:len(plain)], plain) {
		t.Errorf("decrypted = %q, want %q", got[:len(plain)], plain)
	}
}
