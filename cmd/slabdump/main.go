// Command slabdump inspects a slabkv store file without a running
// application: summary statistics, key listing, single-value dumps, and
// a structural or full-payload validation pass.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coldpack/slabkv"
	"github.com/coldpack/slabkv/logger"
)

var (
	flagLevel             string
	flagDisableCrc        bool
	flagUseMmap           bool
	flagKeyLength         uint32
	flagValidateStructure bool
	flagValidatePayloads  bool
	flagDigest            bool
	flagDumpKeyHex        string
)

var rootCmd = &cobra.Command{
	Use:   "slabdump",
	Short: "slabdump inspects a slabkv store file",
}

func openForInspection(path string) (*slabkv.Store, error) {
	cfg := slabkv.Config{
		KeyLength:         flagKeyLength,
		DisablePayloadCrc: flagDisableCrc,
		UseMemoryMapping:  flagUseMmap,
		AccessMode:        slabkv.AccessModeReadOnly,
		Logger:            logger.NewWithLevel(flagLevel),
	}
	return slabkv.Open(path, cfg)
}

// validateIfRequested runs whichever validation pass the flags ask for,
// --validate-payloads implying --validate-structure.
func validateIfRequested(store *slabkv.Store) error {
	switch {
	case flagValidatePayloads:
		return store.ValidatePayloads()
	case flagValidateStructure:
		return store.ValidateStructure()
	default:
		return nil
	}
}

var summaryCmd = &cobra.Command{
	Use:   "summary <path>",
	Short: "Print key length, record count, data-start pointer, free bytes, and backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openForInspection(args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		if err := validateIfRequested(store); err != nil {
			return err
		}

		fmt.Printf("key length:      %d\n", store.KeyLength())
		fmt.Printf("records:         %d\n", store.Size())
		fmt.Printf("data start ptr:  %d\n", store.DataStartPtr())
		fmt.Printf("free bytes:      %d\n", store.FreeBytes())
		fmt.Printf("backend:         %s\n", store.Backend())

		if flagDigest {
			sum, err := store.Digest()
			if err != nil {
				return fmt.Errorf("digest: %w", err)
			}
			fmt.Printf("digest:          %s\n", sum)
		}
		return nil
	},
}

var keysCmd = &cobra.Command{
	Use:   "keys <path>",
	Short: "List every key in the store, hex-encoded",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openForInspection(args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		if err := validateIfRequested(store); err != nil {
			return err
		}

		for _, k := range store.Keys() {
			fmt.Println(hex.EncodeToString(k))
		}
		return nil
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump <path>",
	Short: "Hex-dump the value stored under --key, or with no --key run only the requested validation pass",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openForInspection(args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		if flagDumpKeyHex == "" {
			return validateIfRequested(store)
		}

		key, err := hex.DecodeString(flagDumpKeyHex)
		if err != nil {
			return fmt.Errorf("--key is not valid hex: %w", err)
		}

		payload, err := store.Read(slabkv.Key(key))
		if err != nil {
			return err
		}
		fmt.Print(hex.Dump(payload))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLevel, "level", "info", "log level (debug, info, error, silent; anything else means info)")
	rootCmd.PersistentFlags().BoolVar(&flagDisableCrc, "disable-crc", false, "pass DisablePayloadCrc to Open; the payload-checksum setting recorded in the file header still decides how payloads are read")
	rootCmd.PersistentFlags().BoolVar(&flagUseMmap, "mmap", false, "open via the memory-mapped backend instead of direct I/O")
	rootCmd.PersistentFlags().Uint32Var(&flagKeyLength, "key-length", 0, "expected key length; 0 accepts whatever the file records")
	rootCmd.PersistentFlags().BoolVar(&flagValidateStructure, "validate-structure", false, "re-validate every index slot's key and envelope CRCs before proceeding")
	rootCmd.PersistentFlags().BoolVar(&flagValidatePayloads, "validate-payloads", false, "also read and CRC-validate every payload (implies --validate-structure)")

	summaryCmd.Flags().BoolVar(&flagDigest, "digest", false, "also compute and print a whole-file blake3 content digest")
	dumpCmd.Flags().StringVar(&flagDumpKeyHex, "key", "", "hex-encoded key to dump; if omitted, only runs the requested validation pass")

	rootCmd.AddCommand(summaryCmd, keysCmd, dumpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
