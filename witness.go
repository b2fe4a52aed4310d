package forge

import (
	"fmt"
	"strconv"
	"time"
)

// WitnessLevel is one rung of the four-level witness hierarchy.
type WitnessLevel int

const (
	LevelSelf      WitnessLevel = 1
	LevelBilateral WitnessLevel = 2
	LevelPublic    WitnessLevel = 3
	LevelAnchored  WitnessLevel = 4
)

func (l WitnessLevel) Label() string {
	switch l {
	case LevelBilateral:
		return "bilateral"
	case LevelPublic:
		return "public"
	case LevelAnchored:
		return "anchored"
	default:
		return "self"
	}
}

func (l WitnessLevel) Description() string {
	switch l {
	case LevelBilateral:
		return "Countersigned by a counterparty — evidence of mutual agreement at the time of recording."
	case LevelPublic:
		return "Submitted to one or more public OpenTimestamps calendars — pending blockchain confirmation."
	case LevelAnchored:
		return "Confirmed by a Bitcoin block header attestation — publicly verifiable and immutable."
	default:
		return "Known only to the chain owner — no external evidence of existence."
	}
}

// Receipt kinds, as persisted under witnesses/<merkle_root>.json.
const (
	KindBilateral    = "bilateral"
	KindOTSPending   = "ots_pending"
	KindOTSConfirmed = "ots_confirmed"
)

// BilateralReceipt is a level-2 witness: evidence a counterparty
// acknowledged a Merkle root at a point in time.
type BilateralReceipt struct {
	MerkleRoot   string `json:"merkle_root"`
	Counterparty string `json:"counterparty"`
	CreatedAt    int64  `json:"created_at"`
	ReceiptHash  string `json:"receipt_hash"`
}

// CalendarSubmission is the per-calendar outcome of an OTS submission.
type CalendarSubmission struct {
	Calendar       string `json:"calendar"`
	Status         string `json:"status"` // "submitted" or "error"
	ResponseHex    string `json:"response_bytes_hex,omitempty"`
	ResponseLength int    `json:"response_length,omitempty"`
	Error          string `json:"error,omitempty"`
	SubmittedAt    int64  `json:"submitted_at"`
}

// OTSPendingReceipt is a level-3 witness: one or more calendars have
// acknowledged a blinded digest and may later confirm it against Bitcoin.
type OTSPendingReceipt struct {
	OriginalHash          string               `json:"original_hash"`
	Nonce                 string               `json:"nonce"`
	Digest                string               `json:"digest"`
	Calendars             []CalendarSubmission `json:"calendars"`
	SuccessfulSubmissions int                  `json:"successful_submissions"`
	TotalCalendars        int                  `json:"total_calendars"`
	CreatedAt             int64                `json:"created_at"`
}

// BitcoinAttestation is one calendar's confirmation that a digest is
// committed in a Bitcoin block.
type BitcoinAttestation struct {
	Calendar    string `json:"calendar"`
	ProofHex    string `json:"proof_bytes_hex"`
	ConfirmedAt int64  `json:"confirmed_at"`
}

// OTSConfirmedReceipt is a level-4 witness: at least one calendar's
// upgrade response carries a Bitcoin attestation.
type OTSConfirmedReceipt struct {
	OriginalHash        string               `json:"original_hash"`
	BitcoinAttestations []BitcoinAttestation `json:"bitcoin_attestations"`
	ConfirmedAt         int64                `json:"confirmed_at"`
}

// WitnessRecord is the persisted envelope for one receipt under a Merkle
// root. Exactly one of the typed payload fields is set, matching Kind.
type WitnessRecord struct {
	Kind         string                `json:"kind"`
	CreatedAt    int64                 `json:"created_at"`
	Bilateral    *BilateralReceipt     `json:"bilateral,omitempty"`
	OTSPending   *OTSPendingReceipt    `json:"ots_pending,omitempty"`
	OTSConfirmed *OTSConfirmedReceipt  `json:"ots_confirmed,omitempty"`
}

// Level reports the trust level of this single record.
func (r WitnessRecord) Level() WitnessLevel {
	switch r.Kind {
	case KindBilateral:
		return LevelBilateral
	case KindOTSPending:
		return LevelPublic
	case KindOTSConfirmed:
		return LevelAnchored
	default:
		return LevelSelf
	}
}

// SaveWitness appends a receipt to the list stored under root.
func SaveWitness(store Store, root string, rec WitnessRecord) error {
	return store.SaveWitness(root, rec)
}

// LoadWitnesses returns the receipts stored under root (empty if none).
func LoadWitnesses(store Store, root string) ([]WitnessRecord, error) {
	return store.LoadWitnesses(root)
}

// WitnessStatus is the result of WitnessLevelOf.
type WitnessStatus struct {
	Level       WitnessLevel   `json:"level"`
	Label       string         `json:"label"`
	Description string         `json:"description"`
	Witness     *WitnessRecord `json:"witness,omitempty"`
}

// WitnessLevelOf reports the effective trust level of root: the maximum
// level across its stored receipts, defaulting to self (1). Level is a
// max-monoid — adding any receipt can only preserve or raise it.
func WitnessLevelOf(store Store, root string) (WitnessStatus, error) {
	records, err := store.LoadWitnesses(root)
	if err != nil {
		return WitnessStatus{}, err
	}
	best := LevelSelf
	var bestRecord *WitnessRecord
	for i := range records {
		if lvl := records[i].Level(); lvl > best {
			best = lvl
			bestRecord = &records[i]
		}
	}
	return WitnessStatus{
		Level:       best,
		Label:       best.Label(),
		Description: best.Description(),
		Witness:     bestRecord,
	}, nil
}

// WitnessSummary is the compact, CLI/HTTP-facing view of a root's witness
// state: its level, how many receipts it has, and the upgrade path to a
// strictly higher level.
type WitnessSummary struct {
	Level        WitnessLevel `json:"level"`
	Label        string       `json:"label"`
	WitnessCount int          `json:"witness_count"`
	Receipts     []string     `json:"receipts"`
	UpgradePath  []string     `json:"upgrade_path"`
}

// Summarize builds the human-readable summary for root.
func Summarize(store Store, root string) (WitnessSummary, error) {
	records, err := store.LoadWitnesses(root)
	if err != nil {
		return WitnessSummary{}, err
	}
	status, err := WitnessLevelOf(store, root)
	if err != nil {
		return WitnessSummary{}, err
	}

	receipts := make([]string, 0, len(records))
	for _, r := range records {
		switch r.Kind {
		case KindBilateral:
			receipts = append(receipts, fmt.Sprintf("bilateral witness from %s at %s", r.Bilateral.Counterparty, formatMillis(r.Bilateral.CreatedAt)))
		case KindOTSPending:
			receipts = append(receipts, fmt.Sprintf("ots submission to %d/%d calendars at %s", r.OTSPending.SuccessfulSubmissions, r.OTSPending.TotalCalendars, formatMillis(r.OTSPending.CreatedAt)))
		case KindOTSConfirmed:
			receipts = append(receipts, fmt.Sprintf("bitcoin attestation via %d calendar(s) at %s", len(r.OTSConfirmed.BitcoinAttestations), formatMillis(r.OTSConfirmed.ConfirmedAt)))
		}
	}

	return WitnessSummary{
		Level:        status.Level,
		Label:        status.Label,
		WitnessCount: len(records),
		Receipts:     receipts,
		UpgradePath:  upgradePath(status.Level),
	}, nil
}

func upgradePath(from WitnessLevel) []string {
	var steps []string
	if from < LevelBilateral {
		steps = append(steps, "create_bilateral_witness(root, counterparty) to reach bilateral (2)")
	}
	if from < LevelPublic {
		steps = append(steps, "submit_to_ots(root) to reach public (3)")
	}
	if from < LevelAnchored {
		steps = append(steps, "check_ots_upgrade(root) once a calendar has aggregated into a Bitcoin block to reach anchored (4)")
	}
	return steps
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// CreateBilateralWitness constructs and persists a level-2 receipt
// acknowledging that counterparty has witnessed root.
func CreateBilateralWitness(store Store, root, counterparty string) (*BilateralReceipt, error) {
	createdAt := time.Now().UnixMilli()
	receipt := &BilateralReceipt{
		MerkleRoot:   root,
		Counterparty: counterparty,
		CreatedAt:    createdAt,
		ReceiptHash:  Hash("bilateral:" + root + ":" + counterparty + ":" + strconv.FormatInt(createdAt, 10)),
	}
	rec := WitnessRecord{Kind: KindBilateral, CreatedAt: createdAt, Bilateral: receipt}
	if err := store.SaveWitness(root, rec); err != nil {
		return nil, err
	}
	return receipt, nil
}
