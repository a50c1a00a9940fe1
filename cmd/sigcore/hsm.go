package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/remiblancher/sigcore/internal/crypto"
)

var hsmCmd = &cobra.Command{
	Use:   "hsm",
	Short: "HSM commands",
	Long: `Commands for Hardware Security Modules (HSMs) via PKCS#11.

Examples:
  # List available slots and tokens (discovery, no config needed)
  sigcore hsm list --lib /usr/lib/softhsm/libsofthsm2.so

Signing keys are provisioned with the token vendor's tooling and
referenced by label from an HSM configuration file (sign --hsm-config).`,
}

var hsmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List HSM slots and tokens",
	Long: `List all available slots and tokens in a PKCS#11 module.

This command does not require authentication and shows:
  - Slot ID and description
  - Token label and serial (if present)
  - Token manufacturer

Examples:
  sigcore hsm list --lib /usr/lib/softhsm/libsofthsm2.so`,
	Args: cobra.NoArgs,
	RunE: runHSMList,
}

var hsmLib string

func init() {
	hsmCmd.AddCommand(hsmListCmd)

	// list command uses --lib directly (discovery without config)
	hsmListCmd.Flags().StringVar(&hsmLib, "lib", "", "Path to PKCS#11 library (required)")
	_ = hsmListCmd.MarkFlagRequired("lib")
}

func runHSMList(cmd *cobra.Command, args []string) error {
	info, err := crypto.ListHSMSlots(hsmLib)
	if err != nil {
		return fmt.Errorf("failed to list HSM slots: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "PKCS#11 Module: %s\n\n", info.ModulePath)

	if len(info.Slots) == 0 {
		fmt.Fprintln(out, "No slots found.")
		return nil
	}

	for _, slot := range info.Slots {
		fmt.Fprintf(out, "Slot %d:\n", slot.ID)
		fmt.Fprintf(out, "  Description:  %s\n", strings.TrimSpace(slot.Description))

		if slot.HasToken {
			fmt.Fprintf(out, "  Token Label:  %s\n", strings.TrimSpace(slot.TokenLabel))
			fmt.Fprintf(out, "  Token Serial: %s\n", maskSerial(slot.TokenSerial))
			if slot.Manufacturer != "" {
				fmt.Fprintf(out, "  Manufacturer: %s\n", strings.TrimSpace(slot.Manufacturer))
			}
		} else {
			fmt.Fprintf(out, "  Token:        (not present)\n")
		}
		fmt.Fprintln(out)
	}

	return nil
}

// maskSerial partially masks a serial number for security.
func maskSerial(serial string) string {
	serial = strings.TrimSpace(serial)
	if len(serial) <= 4 {
		return serial
	}
	return serial[:3] + strings.Repeat("*", len(serial)-4) + serial[len(serial)-1:]
}
