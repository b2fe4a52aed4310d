package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/forge-audit/forge"
)

var (
	storeDirFlag string
	ownerFlag    string
	rootFlag     string
	fromFlag     string
	toFlag       string
	outFlag      string
	upgradeFlag  bool
	bilateralID  string
	listenAddr   string
)

var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "FORGE — tamper-evident operational audit log",
	Long:  "FORGE records operations as a cryptographically chained, verifiable audit log and escalates its Merkle roots through a witness hierarchy up to a public, blockchain-anchored timestamp.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeDirFlag, "store-dir", "", "override the configured store directory")
	rootCmd.PersistentFlags().StringVar(&ownerFlag, "owner", "", "override the configured chain owner identity")

	logCmd := &cobra.Command{
		Use:   "log <action>",
		Short: "Record an operation as a new atom",
		Args:  cobra.ExactArgs(1),
		RunE:  runLog,
	}
	logCmd.Flags().StringVar(&fromFlag, "from", "{}", "pre-state snapshot, as a JSON object")
	logCmd.Flags().StringVar(&toFlag, "to", "{}", "post-state snapshot, as a JSON object")
	rootCmd.AddCommand(logCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Verify the full atom chain's self-consistency, linkage, and time order",
		RunE:  runVerify,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "seal",
		Short: "Seal every atom not yet covered by a block into a new Merkle block",
		RunE:  runSeal,
	})

	anchorCmd := &cobra.Command{
		Use:   "anchor",
		Short: "Submit the latest sealed root to OpenTimestamps, or check for a Bitcoin upgrade",
		RunE:  runAnchor,
	}
	anchorCmd.Flags().BoolVar(&upgradeFlag, "upgrade", false, "check pending submissions for a Bitcoin attestation instead of submitting")
	anchorCmd.Flags().StringVar(&rootFlag, "root", "", "Merkle root to anchor/upgrade (defaults to the latest sealed block)")
	rootCmd.AddCommand(anchorCmd)

	witnessCmd := &cobra.Command{
		Use:   "witness",
		Short: "Show or extend the witness trust level of a Merkle root",
		RunE:  runWitness,
	}
	witnessCmd.Flags().StringVar(&bilateralID, "bilateral", "", "record a bilateral witness from this counterparty identity")
	witnessCmd.Flags().StringVar(&rootFlag, "root", "", "Merkle root to inspect (defaults to the latest sealed block)")
	rootCmd.AddCommand(witnessCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show atom/block counts and the latest witness level",
		RunE:  runStatus,
	})

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the chain (atoms, blocks, meta) as portable JSON",
		RunE:  runExport,
	}
	exportCmd.Flags().StringVar(&outFlag, "out", "", "write to this file instead of stdout")
	rootCmd.AddCommand(exportCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "backup <dest-dir>",
		Short: "Copy the store's entire data directory to dest-dir",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackup,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "history [n]",
		Short: "Show the most recent n recorded actions (default 20)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistory,
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the read-only HTTP status server",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&listenAddr, "addr", "127.0.0.1:8420", "address to listen on")
	rootCmd.AddCommand(serveCmd)
}

func buildEngine() (*forge.Engine, error) {
	cfg, err := forge.LoadConfig(".")
	if err != nil {
		return nil, err
	}
	if storeDirFlag != "" {
		cfg.StoreDir = storeDirFlag
	}
	if ownerFlag != "" {
		cfg.Owner = ownerFlag
	}
	return forge.NewEngine(cfg)
}

func runLog(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	var from, to interface{}
	if err := json.Unmarshal([]byte(fromFlag), &from); err != nil {
		return fmt.Errorf("invalid --from JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(toFlag), &to); err != nil {
		return fmt.Errorf("invalid --to JSON: %w", err)
	}

	atom, err := eng.Chain.Record(args[0], from, to)
	if err != nil {
		printError("failed to record action: %v", err)
		return err
	}
	printSuccess("recorded atom, proof=%s", atom.Proof)
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	n, err := eng.Store.AtomCount()
	if err != nil {
		return err
	}
	atoms, err := eng.Store.GetAtoms(0, n)
	if err != nil {
		return err
	}

	result := forge.VerifyChain(atoms)
	if result.Valid {
		printSuccess("chain of %d atoms verified", len(atoms))
		return nil
	}
	printError("chain broken at index %d: %s", result.BrokenAt, result.Reason)
	os.Exit(1)
	return nil
}

func runSeal(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	block, err := eng.Chain.Seal()
	if err != nil {
		return err
	}
	if block == nil {
		printInfo("nothing new to seal")
		return nil
	}
	printSuccess("sealed %d atoms into block, root=%s", block.AtomCount, block.Root)
	return nil
}

func latestRoot(eng *forge.Engine) (string, error) {
	if rootFlag != "" {
		return rootFlag, nil
	}
	blocks, err := eng.Store.GetBlocks()
	if err != nil {
		return "", err
	}
	if len(blocks) == 0 {
		return "", fmt.Errorf("no sealed blocks yet; run `forge seal` first or pass --root")
	}
	return blocks[len(blocks)-1].Root, nil
}

func runAnchor(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	root, err := latestRoot(eng)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if upgradeFlag {
		result, err := eng.OTS.CheckOTSUpgrade(ctx, root)
		if err != nil && err != forge.ErrNoPending {
			return err
		}
		switch result.Status {
		case "no_pending":
			printWarning("no pending submission for root %s", root)
		case "pending":
			printInfo("root %s is still pending Bitcoin confirmation", root)
		case "confirmed":
			printSuccess("root %s confirmed at level %d (anchored)", root, result.NewLevel)
		}
		return nil
	}

	receipt, err := eng.OTS.SubmitToOTS(ctx, root)
	if err != nil {
		return err
	}
	printSuccess("submitted root %s to %d/%d calendars", root, receipt.SuccessfulSubmissions, receipt.TotalCalendars)
	return nil
}

func runWitness(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	root, err := latestRoot(eng)
	if err != nil {
		return err
	}

	if bilateralID != "" {
		receipt, err := forge.CreateBilateralWitness(eng.Store, root, bilateralID)
		if err != nil {
			return err
		}
		printSuccess("bilateral witness recorded from %s, receipt=%s", receipt.Counterparty, receipt.ReceiptHash)
		return nil
	}

	summary, err := forge.Summarize(eng.Store, root)
	if err != nil {
		return err
	}
	printInfo("root %s: level %d (%s), %d receipt(s)", root, summary.Level, summary.Label, summary.WitnessCount)
	for _, r := range summary.Receipts {
		fmt.Println("  -", r)
	}
	for _, step := range summary.UpgradePath {
		fmt.Println("  upgrade:", step)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	atomCount, err := eng.Store.AtomCount()
	if err != nil {
		return err
	}
	blocks, err := eng.Store.GetBlocks()
	if err != nil {
		return err
	}

	printInfo("atoms: %d, blocks: %d", atomCount, len(blocks))
	if len(blocks) == 0 {
		return nil
	}
	root := blocks[len(blocks)-1].Root
	summary, err := forge.Summarize(eng.Store, root)
	if err != nil {
		return err
	}
	printInfo("latest root %s: level %d (%s)", root, summary.Level, summary.Label)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	exported, err := eng.Store.ExportAll()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(exported, "", "  ")
	if err != nil {
		return err
	}
	if outFlag == "" {
		fmt.Println(string(data))
		return nil
	}
	return os.WriteFile(outFlag, data, 0o644)
}

func runBackup(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.Store.Backup(args[0]); err != nil {
		return err
	}
	printSuccess("backed up store to %s", args[0])
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	return StartStatusServer(eng, listenAddr)
}

func runHistory(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	limit := 20
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid history count %q: %w", args[0], err)
		}
		limit = n
	}

	entries, err := eng.Store.GetHistory(limit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		text := e.ActionText
		if text == "" {
			text = e.ActionHash
		}
		fmt.Printf("#%d  %d  %s\n", e.Index, e.When, text)
	}
	return nil
}
