package forge

import "testing"

func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewJSONStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestWitnessLevelUnknownRootIsSelf(t *testing.T) {
	store := newTestStore(t)
	status, err := WitnessLevelOf(store, "deadbeef")
	if err != nil {
		t.Fatalf("WitnessLevelOf: %v", err)
	}
	if status.Level != LevelSelf {
		t.Fatalf("unknown root level = %d, want %d", status.Level, LevelSelf)
	}
}

func TestWitnessLevelEscalatesThroughBilateral(t *testing.T) {
	store := newTestStore(t)
	root := "some-merkle-root"

	if _, err := CreateBilateralWitness(store, root, "ops@x"); err != nil {
		t.Fatalf("CreateBilateralWitness: %v", err)
	}

	status, err := WitnessLevelOf(store, root)
	if err != nil {
		t.Fatalf("WitnessLevelOf: %v", err)
	}
	if status.Level != LevelBilateral {
		t.Fatalf("level after bilateral witness = %d, want %d", status.Level, LevelBilateral)
	}
}

func TestWitnessLevelIsMaxMonoid(t *testing.T) {
	store := newTestStore(t)
	root := "some-merkle-root"

	if _, err := CreateBilateralWitness(store, root, "ops@x"); err != nil {
		t.Fatalf("CreateBilateralWitness: %v", err)
	}

	confirmed := WitnessRecord{
		Kind:      KindOTSConfirmed,
		CreatedAt: 1,
		OTSConfirmed: &OTSConfirmedReceipt{
			OriginalHash:        root,
			BitcoinAttestations: []BitcoinAttestation{{Calendar: "http://example.test", ProofHex: "ab"}},
		},
	}
	if err := store.SaveWitness(root, confirmed); err != nil {
		t.Fatalf("SaveWitness: %v", err)
	}

	status, err := WitnessLevelOf(store, root)
	if err != nil {
		t.Fatalf("WitnessLevelOf: %v", err)
	}
	if status.Level != LevelAnchored {
		t.Fatalf("level after ots_confirmed receipt = %d, want %d (bilateral receipt must not lower it)", status.Level, LevelAnchored)
	}
}

func TestSummarizeReportsUpgradePath(t *testing.T) {
	store := newTestStore(t)
	root := "some-merkle-root"

	summary, err := Summarize(store, root)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.Level != LevelSelf {
		t.Fatalf("fresh root level = %d, want %d", summary.Level, LevelSelf)
	}
	if len(summary.UpgradePath) != 3 {
		t.Fatalf("expected 3 upgrade steps from self, got %v", summary.UpgradePath)
	}
}
