// Package multiplex implements the payload multiplexer of §4.5: it
// sequences multiple per-item encrypted-and-authenticated byte streams over
// one shared stream according to a configurable layout scheme, using a
// seeded CSPRNG for all scheduling randomness.
//
// Grounded on the teacher's phase-function pipeline style. buildSchedule
// itself only needs to know each item's total internal length plus tag
// size up front — the "drain sources before the manifest is written"
// guarantee of §4.7 requires lengths, not ciphertext, to be known before
// the manifest is written — so the scheduler is pure length arithmetic; the
// actual ciphertext bytes for each op are produced on demand, streamed
// through a decorator stack in multiplex.go/itemcrypto.go exactly as each
// op is executed. Both the writer and reader sides call this one function,
// so a shared seed plus identical item lengths reproduces an identical
// interleaving on both ends.
package multiplex

import (
	"obscurcore/internal/csprng"
	"obscurcore/internal/manifest"

	obscurerr "obscurcore/internal/errors"
)

// terminationPaddingRange bounds the small CSPRNG-filled padding region
// emitted after the last item completes, for every layout scheme. The
// payload-configuration DTO only carries chunk/shift ranges for Frameshift
// and Fabric; Simple has none, so a fixed small range is used uniformly —
// an Open Question resolution recorded in DESIGN.md.
const (
	terminationPaddingMin = 0
	terminationPaddingMax = 31
)

// prngs bundles the one or two CSPRNG streams a layout scheme draws from.
type prngs struct {
	primary   csprng.Stream
	secondary csprng.Stream // nil unless Fabric
}

func newPRNGs(layout FrozenPayloadConfiguration) (*prngs, error) {
	primary, err := csprng.NewSalsa20(layout.PrimaryPRNGSeed)
	if err != nil {
		return nil, err
	}
	p := &prngs{primary: primary}
	if layout.SchemeName == manifest.LayoutFabric {
		secondary, err := csprng.NewSalsa20(layout.SecondaryPRNGSeed)
		if err != nil {
			return nil, err
		}
		p.secondary = secondary
	}
	return p, nil
}

// FrozenPayloadConfiguration is the subset of wire.PayloadConfiguration the
// scheduler needs, with the Frameshift/Fabric ranges decoded. Seeds are
// copied through unchanged; csprng.NewSalsa20 rejects any seed that is not
// exactly 32 bytes.
type FrozenPayloadConfiguration struct {
	SchemeName        string
	PrimaryPRNGSeed   []byte
	SecondaryPRNGSeed []byte
	ChunkMin          int
	ChunkMax          int
	ShiftMin          int
	ShiftMax          int
}

// op is one scheduling decision: either transfer n bytes of item idx, or
// emit/skip len(content) bytes of padding. content is drawn once from the
// scheduling CSPRNG, so a reader that builds the same schedule from the
// same seeds reconstructs byte-identical padding without needing to see
// the writer's actual output.
type op struct {
	isPad   bool
	idx     int
	n       int
	content []byte
}

// buildSchedule runs the layout scheme's policy to completion against
// itemLengths (each item's total ciphertext+tag byte count) and returns the
// full ordered sequence of transfer/pad operations. Both the writer and the
// reader call this with identical inputs (the seeds and lengths travel on
// the wire via payload_configuration and the manifest's payload items) and
// therefore compute byte-for-byte the same schedule independently.
func buildSchedule(layout FrozenPayloadConfiguration, itemLengths []int) ([]op, error) {
	p, err := newPRNGs(layout)
	if err != nil {
		return nil, err
	}

	remaining := make([]int, len(itemLengths))
	copy(remaining, itemLengths)

	var ops []op

	switch layout.SchemeName {
	case manifest.LayoutSimple:
		order, err := csprng.Permutation(p.primary, len(itemLengths))
		if err != nil {
			return nil, err
		}
		for _, idx := range order {
			if remaining[idx] > 0 {
				ops = append(ops, op{idx: idx, n: remaining[idx]})
				remaining[idx] = 0
			}
		}

	case manifest.LayoutFrameshift, manifest.LayoutFabric:
		shiftStream := p.primary
		if layout.SchemeName == manifest.LayoutFabric {
			shiftStream = p.secondary
		}
		for activeCount(remaining) > 0 {
			idx, err := pickActive(p.primary, remaining)
			if err != nil {
				return nil, err
			}
			chunk, err := csprng.RangeInclusive(p.primary, layout.ChunkMin, layout.ChunkMax)
			if err != nil {
				return nil, err
			}
			if chunk > remaining[idx] {
				chunk = remaining[idx]
			}
			if chunk > 0 {
				ops = append(ops, op{idx: idx, n: chunk})
				remaining[idx] -= chunk
			}
			shift, err := csprng.RangeInclusive(shiftStream, layout.ShiftMin, layout.ShiftMax)
			if err != nil {
				return nil, err
			}
			if shift > 0 {
				content := make([]byte, shift)
				if err := csprng.Fill(shiftStream, content); err != nil {
					return nil, err
				}
				ops = append(ops, op{isPad: true, n: shift, content: content})
			}
		}

	default:
		return nil, obscurerr.Wrap(obscurerr.ErrUnknownScheme, "payload layout "+layout.SchemeName)
	}

	termLen, err := csprng.RangeInclusive(p.primary, terminationPaddingMin, terminationPaddingMax)
	if err != nil {
		return nil, err
	}
	if termLen > 0 {
		content := make([]byte, termLen)
		if err := csprng.Fill(p.primary, content); err != nil {
			return nil, err
		}
		ops = append(ops, op{isPad: true, n: termLen, content: content})
	}

	return ops, nil
}

func activeCount(remaining []int) int {
	n := 0
	for _, r := range remaining {
		if r > 0 {
			n++
		}
	}
	return n
}

// pickActive draws uniformly among the indices with remaining > 0.
func pickActive(s csprng.Stream, remaining []int) (int, error) {
	var active []int
	for i, r := range remaining {
		if r > 0 {
			active = append(active, i)
		}
	}
	choice, err := s.Uint32n(uint32(len(active)))
	if err != nil {
		return 0, err
	}
	return active[choice], nil
}
