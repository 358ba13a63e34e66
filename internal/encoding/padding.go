// Package encoding provides the block-padding helper used by the cipher
// stream decorator when a block cipher runs in a padded mode (CBC).
package encoding

import "bytes"

// Pad applies PKCS#7 padding so data fills a whole number of blockSize blocks.
//
// PKCS#7 appends N bytes, each with value N, where N is the number of bytes
// needed to reach the next blockSize boundary. If data is already a multiple
// of blockSize, a full block of padding is added.
func Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(data, padding...)
}

// Unpad removes PKCS#7 padding from a decrypted block.
//
// The padding length comes from the value of the last byte. Unpad returns
// data unchanged, rather than panicking, if data is shorter than blockSize or
// the trailing byte isn't a plausible padding length, so callers can tell
// "padding looked wrong" apart from a crash.
func Unpad(data []byte, blockSize int) []byte {
	if len(data) < blockSize || len(data) == 0 {
		return data
	}
	padLen := int(data[len(data)-1])
	if padLen > blockSize || padLen == 0 || padLen > len(data) {
		return data
	}
	return data[:len(data)-padLen]
}
