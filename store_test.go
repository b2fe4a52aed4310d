package forge

import "testing"

func TestJSONStoreAppendAndRetrieveAtoms(t *testing.T) {
	store := newTestStore(t)

	a1 := CreateAtom("ops", "s0", "a1", "s1")
	idx, err := store.AppendAtom(a1)
	if err != nil || idx != 0 {
		t.Fatalf("AppendAtom = %d, %v; want 0, nil", idx, err)
	}

	a2 := CreateAtom("ops", "s1", "a2", "s2", a1.Proof)
	if _, err := store.AppendAtom(a2); err != nil {
		t.Fatalf("AppendAtom: %v", err)
	}

	n, err := store.AtomCount()
	if err != nil || n != 2 {
		t.Fatalf("AtomCount = %d, %v; want 2, nil", n, err)
	}

	got, err := store.GetAtoms(0, 2)
	if err != nil || len(got) != 2 {
		t.Fatalf("GetAtoms = %v, %v", got, err)
	}
	if got[0].Proof != a1.Proof || got[1].Proof != a2.Proof {
		t.Fatal("GetAtoms returned atoms out of order or corrupted")
	}

	last, err := store.LastProof()
	if err != nil || last != a2.Proof {
		t.Fatalf("LastProof = %s, %v; want %s, nil", last, err, a2.Proof)
	}
}

func TestJSONStoreActionSidecar(t *testing.T) {
	store := newTestStore(t)
	hash := Hash("deploy v2")

	if err := store.SaveAction(hash, "deploy v2", map[string]string{"env": "prod"}); err != nil {
		t.Fatalf("SaveAction: %v", err)
	}

	entry, err := store.GetAction(hash)
	if err != nil {
		t.Fatalf("GetAction: %v", err)
	}
	if entry.Plaintext != "deploy v2" || entry.Metadata["env"] != "prod" {
		t.Fatalf("unexpected action entry: %+v", entry)
	}

	if _, err := store.GetAction(Hash("never saved")); err != ErrUnknownAction {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestJSONStoreExportImportRoundTrip(t *testing.T) {
	src := newTestStore(t)
	chain := NewChain("ops", src, nil, nil)
	for i := 0; i < 4; i++ {
		if _, err := chain.Record("step", nil, nil); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if _, err := chain.Seal(); err != nil {
		t.Fatalf("Seal: %v", err)
	}

	exported, err := src.ExportAll()
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if exported.AtomCount != 4 || exported.BlockCount != 1 {
		t.Fatalf("unexpected export shape: %+v", exported)
	}

	dst := newTestStore(t)
	if err := dst.ImportChain(exported); err != nil {
		t.Fatalf("ImportChain: %v", err)
	}

	n, err := dst.AtomCount()
	if err != nil || n != 4 {
		t.Fatalf("AtomCount after import = %d, %v; want 4, nil", n, err)
	}

	dstChain := NewChain("ops", dst, nil, nil)
	proof, err := dstChain.ProveAtom(1)
	if err != nil {
		t.Fatalf("ProveAtom after import (layers dropped on export): %v", err)
	}
	if !dstChain.VerifyProof(proof.Atom.Proof, proof.MerkleProof, proof.MerkleRoot) {
		t.Fatal("rebuilt Merkle proof after import does not verify")
	}
}

func TestJSONStoreHistoryOrderAndLimit(t *testing.T) {
	store := newTestStore(t)
	chain := NewChain("ops", store, nil, nil)
	actions := []string{"a", "b", "c", "d", "e"}
	for _, action := range actions {
		if _, err := chain.Record(action, nil, nil); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	history, err := store.GetHistory(3)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("GetHistory(3) returned %d entries, want 3", len(history))
	}
	if history[0].Index != 2 || history[2].Index != 4 {
		t.Fatalf("GetHistory should return the most recent 3 in order, got %+v", history)
	}
}
