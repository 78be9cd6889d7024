package trie

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/eth2030/stateless-verifier/kv"
)

// Trie is a sparse Merkle Patricia Trie backed by a content-addressed
// node store. Only the nodes needed by past operations are held in
// memory; everything else stays a hash reference until touched.
//
// Trie is not safe for concurrent use.
type Trie struct {
	root  node
	store kv.Getter
}

// New opens the trie rooted at root. The root node is resolved eagerly,
// so an absent root surfaces here rather than on first access.
func New(root common.Hash, store kv.Getter) (*Trie, error) {
	t := &Trie{store: store}
	if root != (common.Hash{}) && root != types.EmptyRootHash {
		rootnode, err := t.resolveHash(root[:], nil)
		if err != nil {
			return nil, err
		}
		t.root = rootnode
	}
	return t, nil
}

// NewEmpty creates a trie with no existing state.
func NewEmpty(store kv.Getter) *Trie {
	return &Trie{store: store}
}

// Copy returns a view of the trie sharing the current nodes. All
// mutations are copy-on-write, so the copies diverge safely; the two
// tries must still not be used concurrently.
func (t *Trie) Copy() *Trie {
	return &Trie{root: t.root, store: t.store}
}

// Get returns the value stored at key, or (nil, nil) if the witness
// proves absence. A MissingNodeError means the trie lacks the nodes to
// decide either way.
func (t *Trie) Get(key []byte) ([]byte, error) {
	value, newroot, didResolve, err := t.tryGet(t.root, keybytesToHex(key), 0)
	if err == nil && didResolve {
		t.root = newroot
	}
	return value, err
}

func (t *Trie) tryGet(origNode node, key []byte, pos int) (value []byte, newnode node, didResolve bool, err error) {
	switch n := origNode.(type) {
	case nil:
		return nil, nil, false, nil
	case valueNode:
		return n, n, false, nil
	case *shortNode:
		if len(key)-pos < len(n.Key) || !bytes.Equal(n.Key, key[pos:pos+len(n.Key)]) {
			// key not found in trie
			return nil, n, false, nil
		}
		value, newnode, didResolve, err = t.tryGet(n.Val, key, pos+len(n.Key))
		if err == nil && didResolve {
			n = n.copy()
			n.Val = newnode
		}
		return value, n, didResolve, err
	case *fullNode:
		value, newnode, didResolve, err = t.tryGet(n.Children[key[pos]], key, pos+1)
		if err == nil && didResolve {
			n = n.copy()
			n.Children[key[pos]] = newnode
		}
		return value, n, didResolve, err
	case hashNode:
		child, err := t.resolveHash(n, key[:pos])
		if err != nil {
			return nil, n, true, err
		}
		value, newnode, _, err := t.tryGet(child, key, pos)
		return value, newnode, true, err
	default:
		panic(fmt.Sprintf("invalid node: %v", origNode))
	}
}

// Update associates key with value. A zero-length value deletes the key.
func (t *Trie) Update(key, value []byte) error {
	k := keybytesToHex(key)
	if len(value) != 0 {
		_, n, err := t.insert(t.root, nil, k, valueNode(value))
		if err != nil {
			return err
		}
		t.root = n
	} else {
		_, n, err := t.delete(t.root, nil, k)
		if err != nil {
			return err
		}
		t.root = n
	}
	return nil
}

// Delete removes key from the trie. Deleting an absent key is a no-op.
func (t *Trie) Delete(key []byte) error {
	return t.Update(key, nil)
}

func (t *Trie) insert(n node, prefix, key []byte, value node) (bool, node, error) {
	if len(key) == 0 {
		if v, ok := n.(valueNode); ok {
			return !bytes.Equal(v, value.(valueNode)), value, nil
		}
		return true, value, nil
	}
	switch n := n.(type) {
	case *shortNode:
		matchlen := prefixLen(key, n.Key)
		// If the whole key matches, keep this short node as is and only
		// update the value.
		if matchlen == len(n.Key) {
			dirty, nn, err := t.insert(n.Val, append(prefix, key[:matchlen]...), key[matchlen:], value)
			if !dirty || err != nil {
				return false, n, err
			}
			return true, &shortNode{Key: n.Key, Val: nn, flags: t.newFlag()}, nil
		}
		// Otherwise branch out at the index where they differ.
		branch := &fullNode{flags: t.newFlag()}
		var err error
		_, branch.Children[n.Key[matchlen]], err = t.insert(nil, append(prefix, n.Key[:matchlen+1]...), n.Key[matchlen+1:], n.Val)
		if err != nil {
			return false, nil, err
		}
		_, branch.Children[key[matchlen]], err = t.insert(nil, append(prefix, key[:matchlen+1]...), key[matchlen+1:], value)
		if err != nil {
			return false, nil, err
		}
		// Replace this shortNode with the branch if it occurs at index 0.
		if matchlen == 0 {
			return true, branch, nil
		}
		// Otherwise, replace it with a short node leading up to the branch.
		return true, &shortNode{Key: key[:matchlen], Val: branch, flags: t.newFlag()}, nil

	case *fullNode:
		dirty, nn, err := t.insert(n.Children[key[0]], append(prefix, key[0]), key[1:], value)
		if !dirty || err != nil {
			return false, n, err
		}
		n = n.copy()
		n.flags = t.newFlag()
		n.Children[key[0]] = nn
		return true, n, nil

	case nil:
		return true, &shortNode{Key: key, Val: value, flags: t.newFlag()}, nil

	case hashNode:
		// We've hit a part of the trie that isn't loaded yet. Load the
		// node and insert into it.
		rn, err := t.resolveHash(n, prefix)
		if err != nil {
			return false, nil, err
		}
		dirty, nn, err := t.insert(rn, prefix, key, value)
		if !dirty || err != nil {
			return false, rn, err
		}
		return true, nn, nil

	default:
		panic(fmt.Sprintf("invalid node: %v", n))
	}
}

func (t *Trie) delete(n node, prefix, key []byte) (bool, node, error) {
	switch n := n.(type) {
	case *shortNode:
		matchlen := prefixLen(key, n.Key)
		if matchlen < len(n.Key) {
			return false, n, nil // don't replace n on mismatch
		}
		if matchlen == len(key) {
			return true, nil, nil // remove n entirely for whole matches
		}
		// The key is longer than n.Key. Remove the remaining suffix from
		// the subtrie. Child can never be nil here since the subtrie must
		// contain at least two other values with keys longer than n.Key.
		dirty, child, err := t.delete(n.Val, append(prefix, key[:len(n.Key)]...), key[len(n.Key):])
		if !dirty || err != nil {
			return false, n, err
		}
		switch child := child.(type) {
		case *shortNode:
			// The child shortNode is merged into its parent, avoiding a
			// dangling extension.
			return true, &shortNode{Key: concat(n.Key, child.Key...), Val: child.Val, flags: t.newFlag()}, nil
		default:
			return true, &shortNode{Key: n.Key, Val: child, flags: t.newFlag()}, nil
		}

	case *fullNode:
		dirty, nn, err := t.delete(n.Children[key[0]], append(prefix, key[0]), key[1:])
		if !dirty || err != nil {
			return false, n, err
		}
		n = n.copy()
		n.flags = t.newFlag()
		n.Children[key[0]] = nn

		// Because n is a full node, it must've contained at least two
		// children before the delete operation. If the new child value is
		// non-nil, n still has at least two children after the deletion,
		// and cannot be reduced to a short node.
		if nn != nil {
			return true, n, nil
		}
		// Reduction: check how many non-empty entries are left after the
		// deletion, and reduce the full node to a short node if only one
		// entry is left.
		pos := -1
		for i, cld := range &n.Children {
			if cld != nil {
				if pos == -1 {
					pos = i
				} else {
					pos = -2
					break
				}
			}
		}
		if pos >= 0 {
			if pos != 16 {
				// If the remaining entry is a short node, it replaces n
				// and its key gets the missing nibble tacked to the front.
				cnode, err := t.resolve(n.Children[pos], append(prefix, byte(pos)))
				if err != nil {
					return false, nil, err
				}
				if cnode, ok := cnode.(*shortNode); ok {
					k := append([]byte{byte(pos)}, cnode.Key...)
					return true, &shortNode{Key: k, Val: cnode.Val, flags: t.newFlag()}, nil
				}
			}
			// Otherwise, n is replaced by a one-nibble short node
			// containing the child.
			return true, &shortNode{Key: []byte{byte(pos)}, Val: n.Children[pos], flags: t.newFlag()}, nil
		}
		// n still contains at least two values and cannot be reduced.
		return true, n, nil

	case valueNode:
		return true, nil, nil

	case nil:
		return false, nil, nil

	case hashNode:
		rn, err := t.resolveHash(n, prefix)
		if err != nil {
			return false, nil, err
		}
		dirty, nn, err := t.delete(rn, prefix, key)
		if !dirty || err != nil {
			return false, rn, err
		}
		return true, nn, nil

	default:
		panic(fmt.Sprintf("invalid node: %v (%v)", n, key))
	}
}

func (t *Trie) resolve(n node, prefix []byte) (node, error) {
	if n, ok := n.(hashNode); ok {
		return t.resolveHash(n, prefix)
	}
	return n, nil
}

func (t *Trie) resolveHash(n hashNode, prefix []byte) (node, error) {
	enc, ok := t.store.Get(n)
	if !ok {
		return nil, &MissingNodeError{NodeHash: common.BytesToHash(n), Path: prefix}
	}
	return decodeNode(n, enc)
}

// newFlag returns the cache flag value for a newly created node.
func (t *Trie) newFlag() nodeFlag {
	return nodeFlag{dirty: true}
}

// Hash returns the root hash of the trie. Only nodes dirtied since the
// last call are rehashed.
func (t *Trie) Hash() common.Hash {
	if t.root == nil {
		return types.EmptyRootHash
	}
	h := new(hasher)
	hashed, cached := h.hash(t.root, true)
	t.root = cached
	return common.BytesToHash(hashed.(hashNode))
}

// Commit hashes the trie and writes every referenced node's encoding
// into w, keyed by its hash. The resulting store contents are enough to
// reopen the trie with New and replay the same reads.
func (t *Trie) Commit(w kv.Putter) (common.Hash, error) {
	if t.root == nil {
		return types.EmptyRootHash, nil
	}
	h := &hasher{put: func(hash hashNode, enc []byte) error {
		return w.Put(common.CopyBytes(hash), common.CopyBytes(enc))
	}}
	hashed, cached := h.hash(t.root, true)
	if h.err != nil {
		return common.Hash{}, h.err
	}
	t.root = cached
	return common.BytesToHash(hashed.(hashNode)), nil
}
