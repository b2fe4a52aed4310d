package forge

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Block is a sealed Merkle tree over a contiguous range of a chain's
// atoms. Layers are only needed for proving and may be omitted once
// persisted as an export (they are rebuildable from the covered atoms).
type Block struct {
	Root       string     `json:"root"`
	Layers     [][]string `json:"layers,omitempty"`
	AtomCount  int        `json:"atom_count"`
	RangeStart int        `json:"atom_range_start"`
	RangeEnd   int        `json:"atom_range_end"`
	PrevBlock  string     `json:"prev_block"`
	BlockHash  string     `json:"block_hash"`
	CreatedAt  int64      `json:"created_at"`
}

// Chain is an owned aggregate: an identity, an ordered sequence of atoms,
// and the blocks that have sealed prefixes of it. It serialises its own
// operations; concurrent writers are not supported, matching the
// single-actor scheduling model in the design notes.
type Chain struct {
	owner     string
	ownerHash string
	store     Store
	metrics   *Metrics
	logger    *zap.SugaredLogger
	mu        sync.Mutex
}

// NewChain constructs a Chain for owner (an identity string), backed by
// store. logger and metrics may be nil.
func NewChain(owner string, store Store, logger *zap.SugaredLogger, metrics *Metrics) *Chain {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Chain{
		owner:     owner,
		ownerHash: HashIdentity(owner),
		store:     store,
		metrics:   metrics,
		logger:    logger,
	}
}

// Record constructs an atom for (action, from, to) — a human-readable
// operation description and arbitrary pre/post state snapshots — links it
// to the chain's current tip, appends it, and persists the action's
// plaintext through the store's sidecar.
func (c *Chain) Record(action string, from, to interface{}) (*Atom, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, err := c.store.LastProof()
	if err != nil {
		return nil, err
	}

	atom := CreateAtom(c.ownerHash, HashState(from), HashAction(action), HashState(to), prev)
	if _, err := c.store.AppendAtom(atom); err != nil {
		return nil, err
	}
	if err := c.store.SaveAction(atom.Action, action, nil); err != nil {
		c.logger.Warnw("failed to persist action plaintext sidecar", "error", err)
	}
	if c.metrics != nil {
		c.metrics.AtomsRecorded.Inc()
	}
	return atom, nil
}

// Seal builds a Merkle tree over the proofs of every atom appended since
// the last sealed block and produces a new Block covering that suffix.
// Returns (nil, nil) when there is nothing new to seal.
func (c *Chain) Seal() (*Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	total, err := c.store.AtomCount()
	if err != nil {
		return nil, err
	}

	blocks, err := c.store.GetBlocks()
	if err != nil {
		return nil, err
	}

	start := 0
	prevBlockHash := genesisMarker
	if len(blocks) > 0 {
		last := blocks[len(blocks)-1]
		start = last.RangeEnd + 1
		prevBlockHash = last.BlockHash
	}
	if start >= total {
		return nil, nil
	}

	atoms, err := c.store.GetAtoms(start, total)
	if err != nil {
		return nil, err
	}
	leaves := make([]string, len(atoms))
	for i, a := range atoms {
		leaves[i] = a.Proof
	}

	root, layers := BuildTree(leaves)
	createdAt := time.Now().UnixMilli()
	block := &Block{
		Root:       root,
		Layers:     layers,
		AtomCount:  len(atoms),
		RangeStart: start,
		RangeEnd:   total - 1,
		PrevBlock:  prevBlockHash,
		CreatedAt:  createdAt,
	}
	block.BlockHash = Hash(block.Root + block.PrevBlock + strconv.FormatInt(block.CreatedAt, 10))

	if _, err := c.store.AppendBlock(block); err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.BlocksSealed.Inc()
	}
	return block, nil
}

// AtomProof is the result of Chain.ProveAtom: an atom plus the Merkle path
// and root/block that attest to its inclusion.
type AtomProof struct {
	Atom        *Atom       `json:"atom"`
	MerkleProof []ProofStep `json:"merkle_proof"`
	MerkleRoot  string      `json:"merkle_root"`
	BlockHash   string      `json:"block_hash"`
}

// ProveAtom locates the sealed block containing globalIndex and builds the
// Merkle inclusion proof for it. Returns ErrNotSealed if no block covers
// that atom yet.
func (c *Chain) ProveAtom(globalIndex int) (*AtomProof, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	blocks, err := c.store.GetBlocks()
	if err != nil {
		return nil, err
	}
	for _, b := range blocks {
		if globalIndex < b.RangeStart || globalIndex > b.RangeEnd {
			continue
		}
		localIndex := globalIndex - b.RangeStart
		layers := b.Layers
		if len(layers) == 0 {
			// Layers were dropped on export; rebuild them from the
			// covered atoms so proving still works after import.
			atoms, err := c.store.GetAtoms(b.RangeStart, b.RangeEnd+1)
			if err != nil {
				return nil, err
			}
			leaves := make([]string, len(atoms))
			for i, a := range atoms {
				leaves[i] = a.Proof
			}
			_, layers = BuildTree(leaves)
		}
		atom, err := c.store.GetAtom(globalIndex)
		if err != nil {
			return nil, err
		}
		return &AtomProof{
			Atom:        atom,
			MerkleProof: GetMerkleProof(layers, localIndex),
			MerkleRoot:  b.Root,
			BlockHash:   b.BlockHash,
		}, nil
	}
	return nil, ErrNotSealed
}

// VerifyProof delegates to the standalone Merkle verifier.
func (c *Chain) VerifyProof(leafHash string, proof []ProofStep, expectedRoot string) bool {
	return VerifyMerkleProof(leafHash, proof, expectedRoot)
}

// DivergenceReason names why FindDivergence reported a split.
type DivergenceReason string

const (
	DivergenceReasonNone           DivergenceReason = ""
	DivergenceReasonMismatch       DivergenceReason = "mismatch"
	DivergenceReasonLengthMismatch DivergenceReason = "length_mismatch"
)

// DivergenceResult is the structured outcome of FindDivergence. AtIndex,
// ActionMatch, and StateMatch are signal fields whose zero value (0/false)
// is meaningful on its own — e.g. a divergence at index 0 with
// action_match:false — so none of them carry omitempty; a consumer must be
// able to tell "false" from "absent".
type DivergenceResult struct {
	Diverged    bool             `json:"diverged"`
	AtIndex     int              `json:"at_index"`
	Reason      DivergenceReason `json:"reason,omitempty"`
	ActionMatch bool             `json:"action_match"`
	StateMatch  bool             `json:"state_match"`
	WhenA       int64            `json:"when_a,omitempty"`
	WhenB       int64            `json:"when_b,omitempty"`
}

// FindDivergence compares two atom sequences pairwise on (action, from, to)
// up to the shorter length, used for bilateral dispute resolution between
// two parties' chains. Each side's own timestamp at the point of divergence
// is reported so a human reviewer can judge which was recorded first; the
// comparison itself never uses timestamps as a match criterion, since two
// honest parties may time-stamp the same action microseconds apart.
func FindDivergence(a, b []*Atom) DivergenceResult {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		actionMatch := a[i].Action == b[i].Action
		stateMatch := a[i].From == b[i].From && a[i].To == b[i].To
		if !actionMatch || !stateMatch {
			return DivergenceResult{
				Diverged:    true,
				AtIndex:     i,
				Reason:      DivergenceReasonMismatch,
				ActionMatch: actionMatch,
				StateMatch:  stateMatch,
				WhenA:       a[i].When,
				WhenB:       b[i].When,
			}
		}
	}
	if len(a) != len(b) {
		result := DivergenceResult{
			Diverged: true,
			AtIndex:  minLen,
			Reason:   DivergenceReasonLengthMismatch,
		}
		if minLen < len(a) {
			result.WhenA = a[minLen].When
		}
		if minLen < len(b) {
			result.WhenB = b[minLen].When
		}
		return result
	}
	return DivergenceResult{Diverged: false}
}
