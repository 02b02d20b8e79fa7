// Package merkle builds binary Merkle trees over ordered leaves and produces
// inclusion proofs. Export uses it to commit to a journal snapshot so a
// dossier can prove its entries without carrying the whole journal.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	leafPrefix = "ecoproof:merkle:leaf:v1"
	nodePrefix = "ecoproof:merkle:node:v1"
)

// Leaf is one committed value. Key names it inside the tree.
type Leaf struct {
	Key   string
	Value []byte
}

// Tree is a Merkle tree. Levels[0] holds the leaf hashes and the last level
// holds the root. An odd node at any level is paired with itself.
type Tree struct {
	Keys   []string
	Levels [][]string
	Root   string
}

// Build constructs a tree over leaves in the given order. An empty input
// yields an empty root.
func Build(leaves []Leaf) *Tree {
	if len(leaves) == 0 {
		return &Tree{}
	}
	t := &Tree{Keys: make([]string, len(leaves))}
	level := make([]string, len(leaves))
	for i, l := range leaves {
		t.Keys[i] = l.Key
		level[i] = LeafHash(l)
	}
	for len(level) > 1 {
		t.Levels = append(t.Levels, level)
		level = nextLevel(level)
	}
	t.Levels = append(t.Levels, level)
	t.Root = level[0]
	return t
}

// LeafHash is SHA-256 over the domain-separated key and value.
func LeafHash(l Leaf) string {
	var buf bytes.Buffer
	buf.WriteString(leafPrefix)
	buf.WriteByte(0)
	buf.WriteString(l.Key)
	buf.WriteByte(0)
	buf.Write(l.Value)
	return sha256Hex(buf.Bytes())
}

// Proof returns the inclusion proof of the leaf at index.
func (t *Tree) Proof(index int) (InclusionProof, error) {
	if index < 0 || index >= len(t.Keys) {
		return InclusionProof{}, fmt.Errorf("merkle: leaf %d out of range", index)
	}
	p := InclusionProof{
		LeafKey:    t.Keys[index],
		LeafHash:   t.Levels[0][index],
		MerkleRoot: t.Root,
	}
	i := index
	for _, level := range t.Levels[:len(t.Levels)-1] {
		if i%2 == 0 {
			sibling := level[i]
			if i+1 < len(level) {
				sibling = level[i+1]
			}
			p.Path = append(p.Path, ProofStep{Side: SideRight, SiblingHash: sibling})
		} else {
			p.Path = append(p.Path, ProofStep{Side: SideLeft, SiblingHash: level[i-1]})
		}
		i /= 2
	}
	return p, nil
}

func nextLevel(hashes []string) []string {
	n := len(hashes)
	if n%2 != 0 {
		hashes = append(hashes[:n:n], hashes[n-1])
		n++
	}
	out := make([]string, n/2)
	for i := 0; i < n; i += 2 {
		out[i/2] = nodeHash(hashes[i], hashes[i+1])
	}
	return out
}

func nodeHash(left, right string) string {
	var buf bytes.Buffer
	buf.WriteString(nodePrefix)
	buf.WriteByte(0)
	buf.Write(hexToBytes(left))
	buf.Write(hexToBytes(right))
	return sha256Hex(buf.Bytes())
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func hexToBytes(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}
