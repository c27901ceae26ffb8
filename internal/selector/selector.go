// Package selector draws reward winners with a seed-derived, verifiable
// weighted lottery.
package selector

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"math/bits"
	"time"

	"TokenSentinel/internal/entropy"
	"TokenSentinel/internal/model"

	"github.com/shopspring/decimal"
)

var (
	ErrNoCandidates   = errors.New("no eligible candidates")
	ErrWeightMismatch = errors.New("weights do not match candidates")
	ErrUnsorted       = errors.New("candidates must be sorted and unique")
	ErrWeightOverflow = errors.New("total weight overflows")
)

// Select performs the weighted draw. Candidates must be sorted ascending and
// unique; the result is a pure function of the arguments.
func Select(seed entropy.Sample, candidates []string, weights []uint64, reward decimal.Decimal) (model.SelectionProof, error) {
	if len(candidates) == 0 {
		return model.SelectionProof{}, ErrNoCandidates
	}
	if len(weights) != len(candidates) {
		return model.SelectionProof{}, fmt.Errorf("%d weights for %d candidates: %w", len(weights), len(candidates), ErrWeightMismatch)
	}
	var total uint64
	for i, w := range weights {
		if i > 0 && candidates[i] <= candidates[i-1] {
			return model.SelectionProof{}, fmt.Errorf("%q after %q: %w", candidates[i], candidates[i-1], ErrUnsorted)
		}
		var carry uint64
		total, carry = bits.Add64(total, w, 0)
		if carry != 0 {
			return model.SelectionProof{}, ErrWeightOverflow
		}
	}
	if total == 0 {
		return model.SelectionProof{}, fmt.Errorf("all weights zero: %w", ErrNoCandidates)
	}

	p := model.SelectionProof{
		EntropySource: seed.Source,
		BlockID:       seed.BlockID,
		BlockHeight:   seed.Height,
		SampledAt:     seed.ObservedAt,
		Candidates:    append([]string(nil), candidates...),
		Weights:       append([]uint64(nil), weights...),
		TotalWeight:   total,
		RewardAmount:  reward,
	}

	sum := seedHash(p)
	p.DrawValue = binary.BigEndian.Uint64(sum[:8]) % total

	// first candidate whose cumulative weight exceeds the draw
	var cum uint64
	for i, w := range weights {
		cum += w
		if cum > p.DrawValue {
			p.Index = i
			p.Winner = candidates[i]
			break
		}
	}
	p.Digest = digest(p)
	return p, nil
}

// Seal assigns the ledger id and creation time and recomputes the digest over
// them. CreatedAt is bound at millisecond precision, the precision it is
// stored at.
func Seal(p model.SelectionProof, id string, at time.Time) model.SelectionProof {
	p.ID = id
	p.CreatedAt = at
	p.Digest = digest(p)
	return p
}

// Verify recomputes the draw from the proof's recorded inputs and reports
// whether every derived field matches, the digest included.
func Verify(p model.SelectionProof) bool {
	again, err := Select(entropy.Sample{
		Source:     p.EntropySource,
		BlockID:    p.BlockID,
		Height:     p.BlockHeight,
		ObservedAt: p.SampledAt,
	}, p.Candidates, p.Weights, p.RewardAmount)
	if err != nil {
		return false
	}
	again = Seal(again, p.ID, p.CreatedAt)
	if p.Index < 0 || p.Index >= len(p.Candidates) || p.Candidates[p.Index] != p.Winner {
		return false
	}
	return again.TotalWeight == p.TotalWeight &&
		again.DrawValue == p.DrawValue &&
		again.Index == p.Index &&
		again.Winner == p.Winner &&
		again.Digest == p.Digest
}

func seedHash(p model.SelectionProof) [sha256.Size]byte {
	h := sha256.New()
	writeInputs(h, p)
	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

func digest(p model.SelectionProof) string {
	h := sha256.New()
	writeString(h, "selection-proof/v2")
	writeString(h, p.ID)
	writeUint(h, uint64(p.CreatedAt.UnixMilli()))
	writeInputs(h, p)
	writeUint(h, p.TotalWeight)
	writeUint(h, p.DrawValue)
	writeUint(h, uint64(p.Index))
	writeString(h, p.Winner)
	return hex.EncodeToString(h.Sum(nil))
}

// writeInputs is the canonical encoding of everything the draw depends on.
// Every variable-length field carries a length prefix.
func writeInputs(h hash.Hash, p model.SelectionProof) {
	writeString(h, p.EntropySource)
	writeString(h, p.BlockID)
	writeUint(h, p.BlockHeight)
	writeUint(h, uint64(p.SampledAt.UnixNano()))
	writeUint(h, uint64(len(p.Candidates)))
	for i, c := range p.Candidates {
		writeString(h, c)
		writeUint(h, p.Weights[i])
	}
	writeString(h, p.RewardAmount.String())
}

func writeUint(h hash.Hash, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	h.Write(b[:])
}

func writeString(h hash.Hash, s string) {
	writeUint(h, uint64(len(s)))
	h.Write([]byte(s))
}
