package bm13xx

import "fmt"

// HeaderJob is the job layout of chips that roll the whole block header
// (BM1366, BM1370). The job id byte is added by EncodeJob.
type HeaderJob struct {
	NumMidstates  uint8
	StartingNonce uint32
	NBits         uint32
	NTime         uint32
	MerkleRoot    [32]byte
	PrevBlockHash [32]byte
	Version       uint32
}

const HeaderJobLen = 1 + 4 + 4 + 4 + 32 + 32 + 4

func (j HeaderJob) Bytes() []byte {
	b, _ := Pack(&j)
	return b
}

// MidstateJob is the BM1397 layout: the host hashes the first 64 header
// bytes and ships up to four midstates for rolled versions.
type MidstateJob struct {
	StartingNonce uint32
	NBits         uint32
	NTime         uint32
	MerkleRoot4   uint32
	Midstates     [][32]byte
}

const midstateJobFixedLen = 1 + 4 + 4 + 4 + 4

func (j MidstateJob) Bytes() []byte {
	hdr := struct {
		NumMidstates  uint8
		StartingNonce uint32
		NBits         uint32
		NTime         uint32
		MerkleRoot4   uint32
	}{uint8(len(j.Midstates)), j.StartingNonce, j.NBits, j.NTime, j.MerkleRoot4}

	b, _ := Pack(&hdr)
	for _, m := range j.Midstates {
		b = append(b, m[:]...)
	}
	return b
}

// CheckHeaderPayload validates a HeaderJob payload.
func CheckHeaderPayload(payload []byte) error {
	if len(payload) != HeaderJobLen {
		return fmt.Errorf("%w: %d bytes, want %d", ErrPayload, len(payload), HeaderJobLen)
	}
	return nil
}

// CheckMidstatePayload validates a MidstateJob payload with 1, 2 or 4 midstates.
func CheckMidstatePayload(payload []byte) error {
	if len(payload) < midstateJobFixedLen {
		return fmt.Errorf("%w: %d bytes", ErrPayload, len(payload))
	}
	n := int(payload[0])
	if n != 1 && n != 2 && n != 4 {
		return fmt.Errorf("%w: %d midstates", ErrPayload, n)
	}
	if len(payload) != midstateJobFixedLen+32*n {
		return fmt.Errorf("%w: %d bytes for %d midstates", ErrPayload, len(payload), n)
	}
	return nil
}
