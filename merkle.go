package forge

// ProofStep is one sibling hash on the path from a leaf to a Merkle root.
type ProofStep struct {
	Hash      string `json:"hash"`
	Direction string `json:"direction"` // "left" or "right"
}

const (
	directionLeft  = "left"
	directionRight = "right"
)

// BuildTree builds a binary Merkle tree over leaves (in order) and returns
// its root plus every layer bottom-up (layer 0 is the leaves themselves).
// Empty input yields root = Hash("empty") and a single empty layer.
// Single-leaf input yields the leaf itself as the root. Otherwise each
// layer halves the one below by pairwise hashing adjacent nodes; an odd
// trailing node is paired with itself.
func BuildTree(leaves []string) (string, [][]string) {
	if len(leaves) == 0 {
		return Hash("empty"), [][]string{{}}
	}
	if len(leaves) == 1 {
		return leaves[0], [][]string{leaves}
	}

	layers := [][]string{append([]string(nil), leaves...)}
	current := layers[0]
	for len(current) > 1 {
		next := make([]string, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			left := current[i]
			var right string
			if i+1 < len(current) {
				right = current[i+1]
			} else {
				right = current[i]
			}
			next = append(next, hashPair(left, right))
		}
		layers = append(layers, next)
		current = next
	}
	return current[0], layers
}

func hashPair(left, right string) string {
	return Hash(left + right)
}

// GetMerkleProof returns the inclusion path for leafIndex against layers,
// as produced by BuildTree. For each non-root layer it emits the sibling
// node and the direction it sits on ("left" if the sibling precedes the
// current node, i.e. the current index is odd; "right" otherwise). An odd
// trailing node with no sibling emits itself, matching the self-pair rule
// used during build.
func GetMerkleProof(layers [][]string, leafIndex int) []ProofStep {
	var proof []ProofStep
	index := leafIndex
	for layer := 0; layer < len(layers)-1; layer++ {
		nodes := layers[layer]
		var sibling string
		var direction string
		if index%2 == 1 {
			sibling = nodes[index-1]
			direction = directionLeft
		} else {
			if index+1 < len(nodes) {
				sibling = nodes[index+1]
			} else {
				sibling = nodes[index]
			}
			direction = directionRight
		}
		proof = append(proof, ProofStep{Hash: sibling, Direction: direction})
		index /= 2
	}
	return proof
}

// VerifyMerkleProof folds leafHash up through proof and reports whether the
// resulting root matches expectedRoot.
func VerifyMerkleProof(leafHash string, proof []ProofStep, expectedRoot string) bool {
	current := leafHash
	for _, step := range proof {
		if step.Direction == directionLeft {
			current = Hash(step.Hash + current)
		} else {
			current = Hash(current + step.Hash)
		}
	}
	return current == expectedRoot
}
