package encoding

import (
	"bytes"
	"testing"
)

const testBlockSize = 16

func TestPadUnpad(t *testing.T) {
	for size := 1; size <= testBlockSize; size++ {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i % 256)
		}

		padded := Pad(data, testBlockSize)

		if len(padded)%testBlockSize != 0 {
			t.Errorf("Pad(%d bytes) = %d bytes; want multiple of %d", size, len(padded), testBlockSize)
		}

		if size == testBlockSize && len(padded) != 2*testBlockSize {
			t.Errorf("Pad(%d bytes) = %d bytes; want %d", size, len(padded), 2*testBlockSize)
		}

		if size < testBlockSize {
			unpadded := Unpad(padded, testBlockSize)
			if !bytes.Equal(unpadded, data) {
				t.Errorf("Unpad(Pad(%d bytes)) did not recover original data", size)
			}
		}
	}
}

func TestPadUnpadRoundtrip(t *testing.T) {
	testCases := [][]byte{
		{0x01},
		{0x01, 0x02, 0x03},
		bytes.Repeat([]byte{0xAB}, testBlockSize-1),
		bytes.Repeat([]byte{0xCD}, testBlockSize/2),
	}

	for i, data := range testCases {
		padded := Pad(data, testBlockSize)
		unpadded := Unpad(padded, testBlockSize)

		if !bytes.Equal(unpadded, data) {
			t.Errorf("Test case %d: roundtrip failed for %d bytes", i, len(data))
		}
	}
}

func TestUnpadInvalidData(t *testing.T) {
	result := Unpad([]byte{}, testBlockSize)
	if len(result) != 0 {
		t.Errorf("Unpad(empty) should return empty, got %d bytes", len(result))
	}

	shortData := []byte{0x01, 0x02, 0x03}
	result = Unpad(shortData, testBlockSize)
	if !bytes.Equal(result, shortData) {
		t.Errorf("Unpad(short) should return data unchanged, got %v", result)
	}

	almostFull := make([]byte, testBlockSize-1)
	for i := range almostFull {
		almostFull[i] = byte(i)
	}
	result = Unpad(almostFull, testBlockSize)
	if !bytes.Equal(result, almostFull) {
		t.Errorf("Unpad(blockSize-1 bytes) should return data unchanged")
	}

	result = Unpad([]byte{0xFF}, testBlockSize)
	if !bytes.Equal(result, []byte{0xFF}) {
		t.Errorf("Unpad(1 byte) should return data unchanged")
	}
}
