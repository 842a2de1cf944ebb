// Package aesw wraps AES-128-CBC encrypt/decrypt in the narrow shape
// the Wii crypto pipeline needs: fixed 16-byte keys and IVs, streamed
// over an io.Reader/io.Writer via connesc/cipherio, the same pairing
// bodgit-wud uses to decrypt WUD partitions and ticket/TMD blocks.
package aesw

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"io"

	"github.com/connesc/cipherio"
)

// KeySize is the fixed Wii common/title/SD key length.
const KeySize = 16

var errKeySize = errors.New("aesw: key must be 16 bytes")

// NewCipher validates key length and constructs an AES block cipher,
// the same up-front check bodgit-wud performs before building its
// common/game ciphers.
func NewCipher(key []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, errKeySize
	}
	return aes.NewCipher(key)
}

// DecryptReader wraps r in a CBC-decrypting reader keyed by block and
// iv, matching cipherio.NewBlockReader(sr, cipher.NewCBCDecrypter(...))
// as used throughout bodgit-wud's partition/ticket parsing.
func DecryptReader(r io.Reader, block cipher.Block, iv []byte) io.Reader {
	return cipherio.NewBlockReader(r, cipher.NewCBCDecrypter(block, iv))
}

// EncryptWriter wraps w in a CBC-encrypting writer keyed by block and
// iv, the write-side counterpart of DecryptReader (the teacher only
// ever decrypts; encryption is this toolkit's own addition, built from
// the same cipherio primitive). The import, extract and re-crypt paths
// do not use it; they encrypt in-memory buffers with EncryptBlock.
func EncryptWriter(w io.Writer, block cipher.Block, iv []byte) io.WriteCloser {
	return cipherio.NewBlockWriter(w, cipher.NewCBCEncrypter(block, iv))
}

// DecryptBlock decrypts a single in-memory buffer in place; buf's
// length must be a multiple of aes.BlockSize. Used for title keys and
// for a sector's hash block and data, which are already held in memory
// whole.
func DecryptBlock(buf []byte, block cipher.Block, iv []byte) error {
	if len(buf)%aes.BlockSize != 0 {
		return errors.New("aesw: buffer is not a multiple of the block size")
	}
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(buf, buf)
	return nil
}

// EncryptBlock encrypts a single in-memory buffer in place.
func EncryptBlock(buf []byte, block cipher.Block, iv []byte) error {
	if len(buf)%aes.BlockSize != 0 {
		return errors.New("aesw: buffer is not a multiple of the block size")
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(buf, buf)
	return nil
}
