package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/ssc-witness/witness/wcrypto"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage witness signing keys",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "pub WIF",
			Short: "Print the public key to register for a WIF private key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := wcrypto.ParsePrivateKeyWIF(strings.TrimSpace(args[0]))
				if err != nil {
					return fmt.Errorf("invalid private key: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), s.PubKey().String())
				return err
			},
		},
		&cobra.Command{
			Use:   "new",
			Short: "Generate a new signing key",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := wcrypto.GenerateSecp256k1Signer()
				if err != nil {
					return fmt.Errorf("failed to generate key: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "private: %s\npublic:  %s\n", s.WIF(), s.PubKey())
				return err
			},
		},
		&cobra.Command{
			Use:   "check WIF PUBKEY",
			Short: "Check that a WIF private key matches a registered public key",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := wcrypto.ParsePrivateKeyWIF(strings.TrimSpace(args[0]))
				if err != nil {
					return fmt.Errorf("invalid private key: %w", err)
				}
				pub, err := wcrypto.ParsePubKey(strings.TrimSpace(args[1]))
				if err != nil {
					return fmt.Errorf("invalid public key: %w", err)
				}
				if !s.PubKey().Equal(pub) {
					return errors.New("private key does not match public key")
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return err
			},
		},
	)

	return cmd
}
