package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	pkicrypto "github.com/remiblancher/sigcore/pkg/crypto"
)

var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Digest algorithm registry",
}

var hashListCmd = &cobra.Command{
	Use:   "list",
	Short: "List supported digest algorithms",
	Long: `List the digest algorithms known to the registry with their output size,
OID and whether they can be used with EMSA-PKCS1-v1_5.

SHAKE128 and SHAKE256 are extendable-output functions used at a fixed
length of 16 and 32 bytes.`,
	Args: cobra.NoArgs,
	RunE: runHashList,
}

func init() {
	hashCmd.AddCommand(hashListCmd)
}

func runHashList(cmd *cobra.Command, args []string) error {
	reg := pkicrypto.DefaultRegistry()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tOID\tPKCS1\tXOF")
	for _, h := range reg.Hashes() {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", h, h.Size(), h.OID(), yesNo(reg.HasPrefix(h)), yesNo(h.IsXOF()))
	}
	return w.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
