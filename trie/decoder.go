package trie

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// decodeNode parses the RLP encoding of a trie node. The hash is recorded
// in the node's cache so that re-hashing a clean node is free.
func decodeNode(hash, buf []byte) (node, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("trie: empty node encoding")
	}
	elems, _, err := rlp.SplitList(buf)
	if err != nil {
		return nil, fmt.Errorf("trie: decode error: %v", err)
	}
	switch c, _ := rlp.CountValues(elems); c {
	case 2:
		n, err := decodeShort(hash, elems)
		if err != nil {
			return nil, fmt.Errorf("trie: invalid short node: %v", err)
		}
		return n, nil
	case 17:
		n, err := decodeFull(hash, elems)
		if err != nil {
			return nil, fmt.Errorf("trie: invalid full node: %v", err)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("trie: invalid number of list elements: %v", c)
	}
}

func decodeShort(hash, elems []byte) (node, error) {
	kbuf, rest, err := rlp.SplitString(elems)
	if err != nil {
		return nil, err
	}
	flag := nodeFlag{hash: hash}
	key := compactToHex(kbuf)
	if hasTerm(key) {
		// value node
		val, _, err := rlp.SplitString(rest)
		if err != nil {
			return nil, fmt.Errorf("invalid value node: %v", err)
		}
		return &shortNode{Key: key, Val: valueNode(val), flags: flag}, nil
	}
	r, _, err := decodeRef(rest)
	if err != nil {
		return nil, err
	}
	return &shortNode{Key: key, Val: r, flags: flag}, nil
}

func decodeFull(hash, elems []byte) (*fullNode, error) {
	n := &fullNode{flags: nodeFlag{hash: hash}}
	for i := 0; i < 16; i++ {
		cld, rest, err := decodeRef(elems)
		if err != nil {
			return n, fmt.Errorf("child %d: %v", i, err)
		}
		n.Children[i], elems = cld, rest
	}
	val, _, err := rlp.SplitString(elems)
	if err != nil {
		return n, err
	}
	if len(val) > 0 {
		n.Children[16] = valueNode(val)
	}
	return n, nil
}

const hashLen = 32

func decodeRef(buf []byte) (node, []byte, error) {
	kind, val, rest, err := rlp.Split(buf)
	if err != nil {
		return nil, buf, err
	}
	switch {
	case kind == rlp.List:
		// Embedded node reference. The encoding must be smaller than a
		// hash in order to be valid.
		if size := len(buf) - len(rest); size > hashLen {
			return nil, buf, fmt.Errorf("oversized embedded node (size %d)", size)
		}
		n, err := decodeNode(nil, buf[:len(buf)-len(rest)])
		if err != nil {
			return nil, buf, err
		}
		return n, rest, nil
	case kind == rlp.String && len(val) == 0:
		// empty node
		return nil, rest, nil
	case kind == rlp.String && len(val) == 32:
		return hashNode(val), rest, nil
	default:
		return nil, buf, fmt.Errorf("invalid RLP string size %d (want 0 or 32)", len(val))
	}
}
