// Package manifest holds the package format's structural constants and
// the data-model invariants layered on top of the wire DTOs: magic tags,
// Base128 varint length-prefixing, payload-item ordering and uniqueness,
// and the carried-vs-derived key invariant.
package manifest

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"

	"obscurcore/internal/wire"

	obscurerr "obscurcore/internal/errors"
)

// HeaderTag is the 10-byte magic at offset 0 of every package.
var HeaderTag = []byte("OCpkg-OHAI")

// TrailerTag is the 10-byte magic at the end of every package.
var TrailerTag = []byte("KBAI-OCpkg")

// CurrentFormatVersion is the highest format_version this implementation
// understands.
const CurrentFormatVersion = 1

const (
	SchemeSymmetricOnly = "SymmetricOnly"
	SchemeUm1Hybrid      = "Um1Hybrid"
)

const (
	LayoutSimple      = "Simple"
	LayoutFrameshift  = "Frameshift"
	LayoutFabric      = "Fabric"
)

const (
	ItemTypeMessage   = "Message"
	ItemTypeFile      = "File"
	ItemTypeKeyAction = "KeyAction"
)

// ReadTag reads exactly len(want) bytes from r and compares them to want,
// returning ErrTruncatedInput or ErrMalformedStructure as appropriate.
func ReadTag(r io.Reader, want []byte, field string) error {
	got := make([]byte, len(want))
	if _, err := io.ReadFull(r, got); err != nil {
		return obscurerr.NewStructureError(field, obscurerr.ErrTruncatedInput)
	}
	if !bytes.Equal(got, want) {
		return obscurerr.NewStructureError(field, obscurerr.ErrMalformedStructure)
	}
	return nil
}

// WriteVarint writes v as a Base128 (LEB128-style) varint to w.
func WriteVarint(w io.Writer, v uint64) error {
	var buf [10]byte
	n := binary.PutUvarint(buf[:], v)
	_, err := w.Write(buf[:n])
	if err != nil {
		return obscurerr.NewIoError("write", err)
	}
	return nil
}

// ReadVarint reads a Base128 varint from r.
func ReadVarint(r io.ByteReader) (uint64, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, obscurerr.NewStructureError("varint-length", obscurerr.ErrTruncatedInput)
	}
	return v, nil
}

// ValidateFormatVersion enforces format_version ≤ CurrentFormatVersion.
func ValidateFormatVersion(v uint32) error {
	if v < 1 || v > CurrentFormatVersion {
		return obscurerr.ErrUnsupportedVersion
	}
	return nil
}

// ValidateSchemeName enforces scheme_name ∈ {SymmetricOnly, Um1Hybrid}.
func ValidateSchemeName(name string) error {
	if name != SchemeSymmetricOnly && name != SchemeUm1Hybrid {
		return obscurerr.Wrap(obscurerr.ErrUnknownScheme, "manifest crypto scheme "+name)
	}
	return nil
}

// ValidateLayoutName enforces payload_configuration.scheme_name ∈
// {Simple, Frameshift, Fabric}.
func ValidateLayoutName(name string) error {
	switch name {
	case LayoutSimple, LayoutFrameshift, LayoutFabric:
		return nil
	default:
		return obscurerr.Wrap(obscurerr.ErrUnknownScheme, "payload layout scheme "+name)
	}
}

// ValidateItems enforces invariant 2 (unique identifiers, deterministic
// ordering by identifier for scheduling purposes) and invariant 3 (carried
// keys are either both present or both absent, never mixed) over a
// manifest's payload items. It returns the items in their canonical
// identifier-sorted order.
func ValidateItems(items []wire.PayloadItem) ([]wire.PayloadItem, error) {
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		id := string(it.Identifier)
		if seen[id] {
			return nil, obscurerr.Wrap(obscurerr.ErrMalformedStructure, "duplicate payload item identifier")
		}
		seen[id] = true

		hasKeys := len(it.SymmetricCipherKey) > 0 || len(it.AuthenticationKey) > 0
		bothKeys := len(it.SymmetricCipherKey) > 0 && len(it.AuthenticationKey) > 0
		if hasKeys && !bothKeys {
			return nil, obscurerr.Wrap(obscurerr.ErrMalformedStructure, "payload item has partially carried keys")
		}
		if !bothKeys && !it.KeyDerivationCfg.Present() {
			return nil, obscurerr.Wrap(obscurerr.ErrConfigurationInvalid, "payload item has neither carried keys nor a key derivation config")
		}
	}

	ordered := make([]wire.PayloadItem, len(items))
	copy(ordered, items)
	sort.Slice(ordered, func(i, j int) bool {
		return bytes.Compare(ordered[i].Identifier, ordered[j].Identifier) < 0
	})
	return ordered, nil
}
