package trie

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// MissingNodeError is returned when the trie needs a node that is not
// present in the backing node store. For a witness-backed trie this means
// the witness was insufficient for the attempted operation; it is not a
// statement about whether the key exists in the full state.
type MissingNodeError struct {
	NodeHash common.Hash // hash of the missing node
	Path     []byte      // hex nibble path from the root to the missing node
}

func (e *MissingNodeError) Error() string {
	return fmt.Sprintf("missing trie node %x (path %x)", e.NodeHash, e.Path)
}
