package forge

import "testing"

func TestCreateAtomVerifies(t *testing.T) {
	a := CreateAtom("alice", "stopped", "start service", "running")
	if !VerifyAtom(a) {
		t.Fatal("freshly created atom failed verification")
	}
	if len(a.Prev) != 1 || a.Prev[0] != genesisMarker {
		t.Fatalf("genesis atom should default prev to [%q], got %v", genesisMarker, a.Prev)
	}
}

func TestVerifyAtomRejectsMutation(t *testing.T) {
	a := CreateAtom("alice", "stopped", "start service", "running")
	mutated := *a
	mutated.Action = "something else"
	if VerifyAtom(&mutated) {
		t.Fatal("mutating action should have broken verification")
	}
}

func TestVerifyAtomRejectsEachFieldMutation(t *testing.T) {
	base := CreateAtom("alice", "stopped", "start service", "running")

	cases := []struct {
		name   string
		mutate func(*Atom)
	}{
		{"who", func(a *Atom) { a.Who = "mallory" }},
		{"from", func(a *Atom) { a.From = "tampered" }},
		{"action", func(a *Atom) { a.Action = "tampered" }},
		{"to", func(a *Atom) { a.To = "tampered" }},
		{"when", func(a *Atom) { a.When++ }},
		{"prev", func(a *Atom) { a.Prev = []string{"tampered"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mutated := *base
			mutated.Prev = append([]string(nil), base.Prev...)
			tc.mutate(&mutated)
			if VerifyAtom(&mutated) {
				t.Fatalf("mutating %s should have broken verification", tc.name)
			}
		})
	}
}

func buildFiveAtomChain(t *testing.T) []*Atom {
	t.Helper()
	actions := []string{"apt update", "install nginx", "configure firewall", "deploy app", "enable ssl"}
	var atoms []*Atom
	prev := genesisMarker
	for _, action := range actions {
		a := CreateAtom("ops", "idle", action, "idle", prev)
		atoms = append(atoms, a)
		prev = a.Proof
	}
	return atoms
}

func TestVerifyChainValidFiveAtoms(t *testing.T) {
	atoms := buildFiveAtomChain(t)
	result := VerifyChain(atoms)
	if !result.Valid {
		t.Fatalf("expected a valid chain, got %+v", result)
	}
}

func TestVerifyChainDetectsMutationAtIndex(t *testing.T) {
	atoms := buildFiveAtomChain(t)
	mutated := *atoms[2]
	mutated.Action = Hash("something else")
	atoms[2] = &mutated

	result := VerifyChain(atoms)
	if result.Valid {
		t.Fatal("expected verification to fail after mutating atom #2")
	}
	if result.BrokenAt != 2 {
		t.Fatalf("expected broken_at = 2, got %d", result.BrokenAt)
	}
}

func TestVerifyChainEmpty(t *testing.T) {
	result := VerifyChain(nil)
	if !result.Valid || result.BrokenAt != -1 {
		t.Fatalf("expected an empty chain to verify trivially, got %+v", result)
	}
}

func TestVerifyChainDetectsBreak(t *testing.T) {
	atoms := buildFiveAtomChain(t)
	broken := CreateAtom("ops", "idle", "rogue action", "idle", "not-the-real-prev-proof")
	atoms[3] = broken

	result := VerifyChain(atoms)
	if result.Valid || result.Reason != ReasonChainBreak || result.BrokenAt != 3 {
		t.Fatalf("expected a chain_break at index 3, got %+v", result)
	}
}
