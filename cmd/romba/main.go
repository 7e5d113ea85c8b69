package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"romba-go/internal/app"
	"romba-go/internal/config"
	"romba-go/internal/encryption"
	"romba-go/internal/romba"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// readConfig reads the config at the default location.
func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a RombaApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "archive", "rescan").
func newApp(operation string) (*app.RombaApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.NewRombaApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readPassphrase prompts on stderr and reads a passphrase without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

func printFailures(failures []romba.Failure) {
	for _, f := range failures {
		fmt.Fprintf(os.Stderr, "  failed: %v\n", f)
	}
}

var rootCmd = &cobra.Command{
	Use:          "romba",
	Short:        "ROM collection manager backed by a content-addressed depot",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults.BaseDir)
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		fmt.Printf("Depot:    %s\n", cfg.Depots[0].Path)
		fmt.Printf("DAT Root: %s\n", cfg.DatRoot)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		fmt.Printf("DAT Root: %s\n", cfg.DatRoot)
		fmt.Printf("Index:    %s %s\n", cfg.Index.Type, cfg.Index.DataDir)
		fmt.Printf("Workers:  %d\n", cfg.WorkerCount())
		for _, d := range cfg.Depots {
			limit := "unbounded"
			if d.MaxSize > 0 {
				limit = fmt.Sprintf("%d bytes", d.MaxSize)
			}
			state := "online"
			if !d.IsOnline() {
				state = "offline"
			}
			fmt.Printf("Depot:    %s (%s, %s)\n", d.Path, limit, state)
		}
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage index snapshot keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the key pair used to encrypt index snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return fmt.Errorf("creating encryptor: %w", err)
		}

		pass, err := readPassphrase("Passphrase for the private key: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return fmt.Errorf("passphrases do not match")
		}
		if pass == "" {
			return fmt.Errorf("passphrase must not be empty")
		}

		if err := enc.Setup(pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive PATH...",
	Short: "Store files in the depot",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("archive")
		if err != nil {
			return err
		}
		defer a.Close()

		policy := a.Policy()
		if cmd.Flags().Changed("only-needed") {
			policy.OnlyNeeded, _ = cmd.Flags().GetBool("only-needed")
		}
		if cmd.Flags().Changed("no-db") {
			policy.NoDB, _ = cmd.Flags().GetBool("no-db")
		}
		if cmd.Flags().Changed("skip-initial-scan") {
			policy.SkipInitialScan, _ = cmd.Flags().GetBool("skip-initial-scan")
		}

		res, err := a.Archive(cmd.Context(), args, policy)
		if res != nil {
			fmt.Printf("Scanned %d file(s), %d needed: %d stored (%d bytes), %d already present\n",
				res.Scanned, res.Needed, res.Stored, res.Bytes, res.Existing)
			printFailures(res.Failures)
		}
		if errors.Is(err, romba.ErrDepotFull) {
			return fmt.Errorf("every depot is full; add or enlarge a depot and archive again: %w", err)
		}
		return err
	},
}

// refresh-dats command
var refreshDatsCmd = &cobra.Command{
	Use:   "refresh-dats",
	Short: "Import new DATs from dat_root and forget removed ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("refresh-dats")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.RefreshDats(cmd.Context())
		if res != nil {
			fmt.Printf("Scanned %d DAT(s): %d imported (%d items), %d unchanged, %d removed\n",
				res.Scanned, res.Imported, res.Items, res.Skipped, res.Removed)
			printFailures(res.Failures)
		}
		return err
	},
}

// rescan command
var rescanCmd = &cobra.Command{
	Use:   "rescan [DEPOT...]",
	Short: "Verify depot objects and reconcile the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		resume, _ := cmd.Flags().GetBool("resume")

		a, err := newApp("rescan")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Rescan(cmd.Context(), args, resume)
		if res != nil {
			fmt.Printf("Rescanned %d depot(s): %d object(s), %d recorded, %d removed, %d bytes\n",
				res.Depots, res.Objects, res.Recorded, res.Removed, res.Size)
			for _, d := range res.Discrepancies {
				fmt.Fprintf(os.Stderr, "  %s/%s: %v\n", d.Depot, d.SHA1, d.Err)
			}
		}
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("rescan interrupted; run 'romba rescan --resume' to continue: %w", err)
		}
		return err
	},
}

// build command
var buildCmd = &cobra.Command{
	Use:   "build DAT",
	Short: "Rebuild the sets of a DAT from the depot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		fixdat, _ := cmd.Flags().GetString("fixdat")

		a, err := newApp("build")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Build(cmd.Context(), args[0], out)
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %d file(s), %d missing\n", len(res.Written), res.Missing.Len())
		printFailures(res.Failures)

		if fixdat != "" && res.Missing.Len() > 0 {
			if err := a.WriteDat(fixdat, res.Missing); err != nil {
				return fmt.Errorf("writing fixdat: %w", err)
			}
			fmt.Printf("Fixdat written to %s\n", fixdat)
		}
		return nil
	},
}

// fixdat command
var fixdatCmd = &cobra.Command{
	Use:   "fixdat DAT",
	Short: "Write a DAT of the items the depot cannot supply",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")

		a, err := newApp("fixdat")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Fixdat(cmd.Context(), args[0], out)
		if err != nil {
			return err
		}
		fmt.Printf("%d missing item(s) written to %s\n", n, out)
		return nil
	},
}

// lookup command
var lookupCmd = &cobra.Command{
	Use:   "lookup HASH...",
	Short: "Show what the index knows about a CRC32, MD5 or SHA-1",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("lookup")
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.Lookup(cmd.Context(), args)
		for _, r := range results {
			if len(r.Matches) == 0 {
				fmt.Printf("%s  %s  not found\n", r.Algorithm, r.Hash)
				continue
			}
			for _, m := range r.Matches {
				location := "not stored"
				if m.Depot != "" {
					location = m.Depot
				}
				fmt.Printf("%s  %s  sha1:%s  %s\n", r.Algorithm, r.Hash, m.SHA1, location)
			}
		}
		return err
	},
}

// dedup command
var dedupCmd = &cobra.Command{
	Use:   "dedup DAT...",
	Short: "Merge DATs and drop duplicate items",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		by, _ := cmd.Flags().GetString("by")
		out, _ := cmd.Flags().GetString("out")

		a, err := newApp("dedup")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Dedup(args, by, out)
		if err != nil {
			return err
		}
		fmt.Printf("%d item(s) written to %s\n", n, out)
		return nil
	},
}

// diffdat command
var diffdatCmd = &cobra.Command{
	Use:   "diffdat",
	Short: "Write the items of a new DAT that an old DAT lacks",
	RunE: func(cmd *cobra.Command, args []string) error {
		oldPath, _ := cmd.Flags().GetString("old")
		newPath, _ := cmd.Flags().GetString("new")
		out, _ := cmd.Flags().GetString("out")

		a, err := newApp("diffdat")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.DiffDats(oldPath, newPath, out)
		if err != nil {
			return err
		}
		fmt.Printf("%d new item(s) written to %s\n", n, out)
		return nil
	},
}

// index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Back up and restore the hash index",
}

var indexBackupCmd = &cobra.Command{
	Use:   "backup FILE",
	Short: "Write an encrypted snapshot of the index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("index backup")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.BackupIndex(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Index snapshot written to %s\n", args[0])
		return nil
	},
}

var indexRestoreCmd = &cobra.Command{
	Use:   "restore FILE",
	Short: "Decrypt an index snapshot into a database file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")

		a, err := newApp("index restore")
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		dest, err := a.RestoreIndex(args[0], out, pass)
		if err != nil {
			return err
		}
		fmt.Printf("Index restored to %s\n", dest)
		fmt.Println("Stop romba and move it over the live index to use it.")
		return nil
	},
}

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index and depot statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("stats")
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.GetStatus(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("crc:      %d\n", st.Index.CRC)
		fmt.Printf("md5:      %d\n", st.Index.MD5)
		fmt.Printf("sha1:     %d (%d stored)\n", st.Index.SHA1, st.Index.InDepots)
		fmt.Printf("crc_sha1: %d\n", st.Index.CRCSHA1)
		fmt.Printf("md5_sha1: %d\n", st.Index.MD5SHA1)
		fmt.Printf("dats:     %d\n", st.Index.Dats)
		for _, d := range st.Depots {
			var flags []string
			if !d.Online {
				flags = append(flags, "offline")
			}
			if d.Full {
				flags = append(flags, "full")
			}
			fmt.Printf("depot %s  %d bytes  %s\n", d.Root, d.Size, strings.Join(flags, ","))
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("history")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.GetHistory(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("%s  %-13s  %s  %-8s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// index subcommands
	indexCmd.AddCommand(indexBackupCmd)
	indexCmd.AddCommand(indexRestoreCmd)
	indexRestoreCmd.Flags().String("out", "", "Database file to write (default: next to the live index)")

	archiveCmd.Flags().Bool("only-needed", false, "Only store files some imported DAT references")
	archiveCmd.Flags().Bool("no-db", false, "Store files without recording them in the index")
	archiveCmd.Flags().Bool("skip-initial-scan", false, "Skip the size pre-flight")

	rescanCmd.Flags().Bool("resume", false, "Continue an interrupted rescan")

	buildCmd.Flags().String("out", "", "Output directory")
	buildCmd.Flags().String("fixdat", "", "Also write a DAT of the missing items to this file")
	buildCmd.MarkFlagRequired("out")

	fixdatCmd.Flags().String("out", "", "DAT file to write")
	fixdatCmd.MarkFlagRequired("out")

	dedupCmd.Flags().String("by", "sha1", "Key to deduplicate by (crc, md5, sha1, sha256, sha384, sha512, spamsum, machine)")
	dedupCmd.Flags().String("out", "", "DAT file to write")
	dedupCmd.MarkFlagRequired("out")

	diffdatCmd.Flags().String("old", "", "Older DAT")
	diffdatCmd.Flags().String("new", "", "Newer DAT")
	diffdatCmd.Flags().String("out", "", "DAT file to write")
	diffdatCmd.MarkFlagRequired("old")
	diffdatCmd.MarkFlagRequired("new")
	diffdatCmd.MarkFlagRequired("out")

	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(refreshDatsCmd)
	rootCmd.AddCommand(rescanCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(fixdatCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(dedupCmd)
	rootCmd.AddCommand(diffdatCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(historyCmd)
}
