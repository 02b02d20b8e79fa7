package merkle

import "strings"

// Sides of a sibling relative to the running hash.
const (
	SideLeft  = "L"
	SideRight = "R"
)

// InclusionProof shows that LeafHash is committed under MerkleRoot.
type InclusionProof struct {
	LeafKey    string      `json:"leaf_key"`
	LeafHash   string      `json:"leaf_hash"`
	MerkleRoot string      `json:"merkle_root"`
	Path       []ProofStep `json:"path"`
}

type ProofStep struct {
	Side        string `json:"side"`
	SiblingHash string `json:"sibling_hash"`
}

// VerifyInclusionProof recomputes the root from the proof. A non-empty
// expectedRoot must also match the proof's root.
func VerifyInclusionProof(proof InclusionProof, expectedRoot string) bool {
	if expectedRoot != "" && !strings.EqualFold(proof.MerkleRoot, expectedRoot) {
		return false
	}
	current := proof.LeafHash
	for _, step := range proof.Path {
		switch step.Side {
		case SideLeft:
			current = nodeHash(step.SiblingHash, current)
		case SideRight:
			current = nodeHash(current, step.SiblingHash)
		default:
			return false
		}
	}
	return proof.MerkleRoot != "" && strings.EqualFold(current, proof.MerkleRoot)
}
