package obscurcore

import "obscurcore/internal/csprng"

// deterministicFill draws n pseudo-random bytes from a Salsa20 CSPRNG
// seeded by seed, used for the payload_offset padding region. It is
// "deterministic" only in the sense that the same seed reproduces the same
// filler; callers normally pass fresh random seed material per package.
func deterministicFill(seed []byte, n int) ([]byte, error) {
	stream, err := csprng.NewSalsa20(seed)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if err := csprng.Fill(stream, out); err != nil {
		return nil, err
	}
	return out, nil
}
