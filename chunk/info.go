package chunk

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/eth2030/stateless-verifier/witness"
)

// Info is the public metadata of a verified chunk, the values a batch
// prover commits to.
type Info struct {
	ChainID       uint64
	PrevStateRoot common.Hash
	PostStateRoot common.Hash
	WithdrawRoot  common.Hash
	DataHash      common.Hash
	TxBytesHash   common.Hash
}

// NewInfo assembles chunk metadata from the chunk's witnesses and the
// verified post-state root. The witnesses must already have passed
// PreCheck.
func NewInfo(ws []*witness.BlockWitness, postStateRoot common.Hash) *Info {
	info := &Info{
		ChainID:       ws[0].ChainID,
		PrevStateRoot: ws[0].PrevStateRoot,
		PostStateRoot: postStateRoot,
		DataHash:      dataHash(ws),
		TxBytesHash:   txBytesHash(ws),
	}
	if last := ws[len(ws)-1].Header; last.WithdrawalsHash != nil {
		info.WithdrawRoot = *last.WithdrawalsHash
	}
	return info
}

// PublicInputHash commits to the whole chunk:
//
//	keccak(chain id || prev state root || post state root ||
//	       withdraw root || data hash || tx bytes hash)
func (i *Info) PublicInputHash() common.Hash {
	h := sha3.NewLegacyKeccak256()
	var chainID [8]byte
	binary.BigEndian.PutUint64(chainID[:], i.ChainID)
	h.Write(chainID[:])
	h.Write(i.PrevStateRoot[:])
	h.Write(i.PostStateRoot[:])
	h.Write(i.WithdrawRoot[:])
	h.Write(i.DataHash[:])
	h.Write(i.TxBytesHash[:])
	var out common.Hash
	h.Sum(out[:0])
	return out
}

// dataHash commits to every block's data-availability header: number,
// timestamp, base fee, gas limit and transaction count, in block order.
func dataHash(ws []*witness.BlockWitness) common.Hash {
	h := sha3.NewLegacyKeccak256()
	var buf [32]byte
	for _, w := range ws {
		binary.BigEndian.PutUint64(buf[:8], w.Number())
		h.Write(buf[:8])
		binary.BigEndian.PutUint64(buf[:8], w.Header.Time)
		h.Write(buf[:8])
		clear(buf[:])
		if w.Header.BaseFee != nil {
			w.Header.BaseFee.FillBytes(buf[:])
		}
		h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:8], w.Header.GasLimit)
		h.Write(buf[:8])
		binary.BigEndian.PutUint64(buf[:8], uint64(len(w.Transactions)))
		h.Write(buf[:8])
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}

// txBytesHash commits to the flattened encoded transactions of the chunk.
func txBytesHash(ws []*witness.BlockWitness) common.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, w := range ws {
		for _, raw := range w.Transactions {
			h.Write(raw)
		}
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}
