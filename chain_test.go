package forge

import "testing"

func newTestChain(t *testing.T) (*Chain, Store) {
	t.Helper()
	store, err := NewJSONStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewChain("ops@example.com", store, nil, nil), store
}

func TestChainRecordAndSeal(t *testing.T) {
	chain, store := newTestChain(t)

	actions := []string{"apt update", "install nginx", "configure firewall", "deploy app", "enable ssl"}
	for _, action := range actions {
		if _, err := chain.Record(action, map[string]string{"state": "before"}, map[string]string{"state": "after"}); err != nil {
			t.Fatalf("Record(%q): %v", action, err)
		}
	}

	n, err := store.AtomCount()
	if err != nil || n != len(actions) {
		t.Fatalf("AtomCount = %d, %v; want %d, nil", n, err, len(actions))
	}

	block, err := chain.Seal()
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if block == nil || block.AtomCount != len(actions) {
		t.Fatalf("unexpected sealed block: %+v", block)
	}

	again, err := chain.Seal()
	if err != nil {
		t.Fatalf("second Seal: %v", err)
	}
	if again != nil {
		t.Fatalf("sealing with nothing new pending should return nil, got %+v", again)
	}
}

func TestChainProveAtom(t *testing.T) {
	chain, _ := newTestChain(t)
	for i := 0; i < 8; i++ {
		if _, err := chain.Record("step", nil, nil); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	block, err := chain.Seal()
	if err != nil || block == nil {
		t.Fatalf("Seal: %v, %+v", err, block)
	}

	proof, err := chain.ProveAtom(3)
	if err != nil {
		t.Fatalf("ProveAtom: %v", err)
	}
	if !chain.VerifyProof(proof.Atom.Proof, proof.MerkleProof, proof.MerkleRoot) {
		t.Fatal("ProveAtom produced a proof that does not verify")
	}
}

func TestChainProveAtomUnsealed(t *testing.T) {
	chain, _ := newTestChain(t)
	if _, err := chain.Record("step", nil, nil); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := chain.ProveAtom(0); err != ErrNotSealed {
		t.Fatalf("expected ErrNotSealed for an unsealed atom, got %v", err)
	}
}

func TestFindDivergenceIdenticalChains(t *testing.T) {
	a := []*Atom{
		CreateAtom("ops", "x", "a1", "y"),
		CreateAtom("ops", "y", "a2", "z"),
	}
	result := FindDivergence(a, a)
	if result.Diverged {
		t.Fatalf("identical chains should not diverge, got %+v", result)
	}
}

func TestFindDivergenceAtSharedPrefix(t *testing.T) {
	shared := func() []*Atom {
		return []*Atom{
			{Action: "a0", From: "s0", To: "s1"},
			{Action: "a1", From: "s1", To: "s2"},
			{Action: "a2", From: "s2", To: "s3"},
		}
	}
	a := append(shared(), &Atom{Action: "a3-left", From: "s3", To: "s4-left"})
	b := append(shared(), &Atom{Action: "a3-right", From: "s3", To: "s4-right"})

	result := FindDivergence(a, b)
	if !result.Diverged || result.AtIndex != 3 {
		t.Fatalf("expected divergence at index 3, got %+v", result)
	}
	if result.ActionMatch {
		t.Fatalf("expected action_match = false at the divergence point, got %+v", result)
	}
}

func TestFindDivergenceLengthMismatch(t *testing.T) {
	a := []*Atom{{Action: "a0", From: "s0", To: "s1"}}
	b := []*Atom{{Action: "a0", From: "s0", To: "s1"}, {Action: "a1", From: "s1", To: "s2"}}

	result := FindDivergence(a, b)
	if !result.Diverged || result.Reason != DivergenceReasonLengthMismatch {
		t.Fatalf("expected a length_mismatch divergence, got %+v", result)
	}
}
