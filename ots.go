package forge

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultCalendars is the default OpenTimestamps calendar set, per §4.6.
var DefaultCalendars = []string{
	"http://a.pool.opentimestamps.org",
	"http://b.pool.opentimestamps.org",
	"http://a.pool.eternitywall.com",
}

// otsHeaderMagic is the canonical 32-byte OpenTimestamps file magic,
// reserved here for a future full OTS proof-file parser (§4.6). The
// current design only needs the Bitcoin-attestation opcode below.
var otsHeaderMagic = []byte{
	0x00, 0x4f, 0x70, 0x65, 0x6e, 0x54, 0x69, 0x6d,
	0x65, 0x73, 0x74, 0x61, 0x6d, 0x70, 0x73, 0x00,
	0x00, 0x50, 0x72, 0x6f, 0x6f, 0x66, 0x00, 0xbf,
	0x89, 0xe2, 0xe8, 0x84, 0xe8, 0x92, 0x94, 0x01,
}

// OTS opcode alphabet, §4.6. Only otsAttestBitcoin is interpreted by this
// design; the rest are held for a future full tag-stream parser.
const (
	otsOpSHA256      byte = 0x08
	otsOpAppend      byte = 0xf0
	otsOpPrepend     byte = 0xf1
	otsAttestPending byte = 0x83
	otsAttestBitcoin byte = 0x05
)

const otsRequestTimeout = 10 * time.Second

// OTSConfig configures an OTSClient.
type OTSConfig struct {
	Calendars []string
	// RequestsPerSecond and Burst bound the rate of outbound calendar
	// requests (submission and upgrade polling alike), so a caller
	// retrying frequently cannot hammer a single calendar.
	RequestsPerSecond rate.Limit
	Burst             int
}

// OTSClient implements the OpenTimestamps submission/upgrade protocol
// described in §4.6: nonce-blinded submission to a fixed calendar set,
// pending-proof storage, and upgrade polling that recognises Bitcoin
// attestation.
type OTSClient struct {
	calendars []string
	http      *http.Client
	limiters  map[string]*rate.Limiter
	store     Store
	logger    *zap.SugaredLogger
	metrics   *Metrics
}

// NewOTSClient constructs a client against store, using cfg.Calendars (or
// DefaultCalendars if empty).
func NewOTSClient(store Store, cfg OTSConfig, logger *zap.SugaredLogger, metrics *Metrics) *OTSClient {
	calendars := cfg.Calendars
	if len(calendars) == 0 {
		calendars = DefaultCalendars
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 4
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	limiters := make(map[string]*rate.Limiter, len(calendars))
	for _, c := range calendars {
		limiters[c] = rate.NewLimiter(rps, burst)
	}

	return &OTSClient{
		calendars: calendars,
		http:      &http.Client{Timeout: otsRequestTimeout},
		limiters:  limiters,
		store:     store,
		logger:    logger,
		metrics:   metrics,
	}
}

// Calendars reports the calendar URLs this client submits to.
func (c *OTSClient) Calendars() []string {
	out := make([]string, len(c.calendars))
	copy(out, c.calendars)
	return out
}

// SubmitToOTS blinds hashHex with a fresh 16-byte nonce and concurrently
// submits the resulting digest to every configured calendar. A single
// calendar's failure never aborts the others (all-settled fan-out). The
// resulting ots_pending receipt is persisted under hashHex only when at
// least one calendar succeeded.
func (c *OTSClient) SubmitToOTS(ctx context.Context, hashHex string) (*OTSPendingReceipt, error) {
	hashBytes, err := validHashHex(hashHex)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("forge: generate ots nonce: %w", err)
	}
	digest := sha256RawConcat(nonce, hashBytes)

	batchID := uuid.NewString()
	results := make([]CalendarSubmission, len(c.calendars))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(c.calendars))
	for i, calendar := range c.calendars {
		i, calendar := i, calendar
		g.Go(func() error {
			results[i] = c.submitOne(gctx, calendar, digest)
			return nil // all-settled: never propagate a per-calendar error
		})
	}
	_ = g.Wait()

	var successful int
	var errs error
	for _, r := range results {
		if r.Status == "submitted" {
			successful++
		} else if r.Error != "" {
			errs = multierr.Append(errs, fmt.Errorf("%s: %s", r.Calendar, r.Error))
		}
	}
	if errs != nil {
		c.logger.Debugw("ots submission had calendar failures", "batch_id", batchID, "errors", errs)
	}

	receipt := &OTSPendingReceipt{
		OriginalHash:          hashHex,
		Nonce:                 hex.EncodeToString(nonce),
		Digest:                hex.EncodeToString(digest),
		Calendars:             results,
		SuccessfulSubmissions: successful,
		TotalCalendars:        len(c.calendars),
		CreatedAt:             time.Now().UnixMilli(),
	}

	if c.metrics != nil {
		c.metrics.ObserveOTSSubmission(successful > 0)
	}

	if successful == 0 {
		// Not persisted: a receipt with zero successful submissions
		// carries no evidence beyond self (level 1).
		return receipt, nil
	}
	rec := WitnessRecord{Kind: KindOTSPending, CreatedAt: receipt.CreatedAt, OTSPending: receipt}
	if err := c.store.SaveWitness(hashHex, rec); err != nil {
		return receipt, err
	}
	return receipt, nil
}

func (c *OTSClient) submitOne(ctx context.Context, calendar string, digest []byte) CalendarSubmission {
	submittedAt := time.Now().UnixMilli()
	if limiter, ok := c.limiters[calendar]; ok {
		if err := limiter.Wait(ctx); err != nil {
			return CalendarSubmission{Calendar: calendar, Status: "error", Error: err.Error(), SubmittedAt: submittedAt}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, calendar+"/digest", bytes.NewReader(digest))
	if err != nil {
		return CalendarSubmission{Calendar: calendar, Status: "error", Error: err.Error(), SubmittedAt: submittedAt}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/vnd.opentimestamps.v1")
	req.Header.Set("User-Agent", "forge-ots-client/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return CalendarSubmission{Calendar: calendar, Status: "error", Error: err.Error(), SubmittedAt: submittedAt}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CalendarSubmission{Calendar: calendar, Status: "error", Error: err.Error(), SubmittedAt: submittedAt}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return CalendarSubmission{Calendar: calendar, Status: "error", Error: fmt.Sprintf("http %d", resp.StatusCode), SubmittedAt: submittedAt}
	}

	return CalendarSubmission{
		Calendar:       calendar,
		Status:         "submitted",
		ResponseHex:    hex.EncodeToString(body),
		ResponseLength: len(body),
		SubmittedAt:    submittedAt,
	}
}

// UpgradeResult is the structured outcome of CheckOTSUpgrade.
type UpgradeResult struct {
	Status   string       `json:"status"` // "no_pending", "pending", or "confirmed"
	NewLevel WitnessLevel `json:"new_level,omitempty"`
}

// CheckOTSUpgrade polls every calendar a prior pending submission for root
// reached, looking for a Bitcoin attestation in the raw response body. If
// any calendar reports one, an ots_confirmed receipt (level 4) is built
// and persisted.
func (c *OTSClient) CheckOTSUpgrade(ctx context.Context, root string) (*UpgradeResult, error) {
	records, err := c.store.LoadWitnesses(root)
	if err != nil {
		return nil, err
	}

	var latest *OTSPendingReceipt
	var latestAt int64 = -1
	for _, r := range records {
		if r.Kind == KindOTSPending && r.CreatedAt > latestAt {
			latest = r.OTSPending
			latestAt = r.CreatedAt
		}
	}
	if latest == nil {
		return &UpgradeResult{Status: "no_pending"}, ErrNoPending
	}

	type outcome struct {
		calendar  string
		proof     []byte
		confirmed bool
	}
	var submitted []string
	for _, cal := range latest.Calendars {
		if cal.Status == "submitted" {
			submitted = append(submitted, cal.Calendar)
		}
	}

	outcomes := make([]outcome, len(submitted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(submitted))
	for i, calendar := range submitted {
		i, calendar := i, calendar
		g.Go(func() error {
			body, err := c.queryUpgrade(gctx, calendar, latest.Digest)
			if err != nil {
				c.logger.Debugw("ots upgrade query failed", "calendar", calendar, "error", err)
				return nil
			}
			outcomes[i] = outcome{calendar: calendar, proof: body, confirmed: bytes.IndexByte(body, otsAttestBitcoin) >= 0}
			return nil
		})
	}
	_ = g.Wait()

	var attestations []BitcoinAttestation
	confirmedAt := time.Now().UnixMilli()
	for _, o := range outcomes {
		if o.confirmed {
			attestations = append(attestations, BitcoinAttestation{
				Calendar:    o.calendar,
				ProofHex:    hex.EncodeToString(o.proof),
				ConfirmedAt: confirmedAt,
			})
		}
	}

	if c.metrics != nil {
		c.metrics.OTSUpgradeChecks.Inc()
	}

	if len(attestations) == 0 {
		return &UpgradeResult{Status: "pending"}, nil
	}

	confirmed := &OTSConfirmedReceipt{
		OriginalHash:        latest.OriginalHash,
		BitcoinAttestations: attestations,
		ConfirmedAt:         confirmedAt,
	}
	rec := WitnessRecord{Kind: KindOTSConfirmed, CreatedAt: confirmedAt, OTSConfirmed: confirmed}
	if err := c.store.SaveWitness(root, rec); err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.OTSConfirmations.Inc()
	}
	return &UpgradeResult{Status: "confirmed", NewLevel: LevelAnchored}, nil
}

func (c *OTSClient) queryUpgrade(ctx context.Context, calendar, digestHex string) ([]byte, error) {
	if limiter, ok := c.limiters[calendar]; ok {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	url := fmt.Sprintf("%s/timestamp/%s", calendar, digestHex)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.opentimestamps.v1")
	req.Header.Set("User-Agent", "forge-ots-client/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("calendar returned %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

func validHashHex(hashHex string) ([]byte, error) {
	if len(hashHex) != 64 {
		return nil, ErrInvalidHash
	}
	for _, r := range hashHex {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return nil, ErrInvalidHash
		}
	}
	b, err := hex.DecodeString(hashHex)
	if err != nil {
		return nil, ErrInvalidHash
	}
	return b, nil
}

func sha256RawConcat(nonce, hashBytes []byte) []byte {
	h := sha256.New()
	h.Write(nonce)
	h.Write(hashBytes)
	return h.Sum(nil)
}
