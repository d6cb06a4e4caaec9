// Command elfsign signs and verifies MIPS ELF executables per
// SPEC_FULL.md §4.7, wrapping pkg/elfsign with sign/verify subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/openjtaghal/jtaghal/pkg/elfsign"
)

var passwordEnv string

var rootCmd = &cobra.Command{
	Use:   "elfsign",
	Short: "Sign and verify MIPS ELF executables",
	Long: `elfsign computes or checks the HMAC-SHA256 signature segment described
in SPEC_FULL.md §4.7: the entry point and every loadable segment's bytes,
keyed by SHA-512 of a signing password, stored in a PT_LOPROC+5 program
header.

Examples:
  elfsign sign firmware.elf
  elfsign verify firmware.elf --password-env ELFSIGN_PASSWORD`,
}

var signCmd = &cobra.Command{
	Use:   "sign PATH",
	Short: "Compute and write the signature segment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword()
		if err != nil {
			return err
		}
		res, err := elfsign.Sign(args[0], password)
		if err != nil {
			return err
		}
		fmt.Printf("signed: entry=%#08x signature-offset=%#x status=%s\n", res.Entry, res.SigOffset, res.Status)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify PATH",
	Short: "Check the signature segment without modifying the file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword()
		if err != nil {
			return err
		}
		res, err := elfsign.Verify(args[0], password)
		if err != nil {
			return err
		}
		fmt.Printf("entry=%#08x signature-offset=%#x status=%s\n", res.Entry, res.SigOffset, res.Status)
		if res.Status != elfsign.StatusValid {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&passwordEnv, "password-env", "", "read the signing password from this environment variable instead of prompting")
	rootCmd.AddCommand(signCmd, verifyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// readPassword returns the signing password from --password-env if set,
// else prompts on the controlling terminal without echoing input.
func readPassword() ([]byte, error) {
	if passwordEnv != "" {
		v, ok := os.LookupEnv(passwordEnv)
		if !ok {
			return nil, fmt.Errorf("environment variable %s is not set", passwordEnv)
		}
		return []byte(v), nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return password, nil
}
