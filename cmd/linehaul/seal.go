package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"linehaul/telematics"
)

var sealGenerateKey bool

var sealCmd = &cobra.Command{
	Use:   "seal <secret>",
	Short: "Seal a telematics credential with LINEHAUL_SEAL_KEY",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if sealGenerateKey {
			key, err := telematics.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, key)
			return nil
		}
		if len(args) != 1 {
			return errors.New("seal: secret argument required")
		}
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Telematics.SealKey == "" {
			return errors.New("seal: LINEHAUL_SEAL_KEY is not set")
		}
		key, err := telematics.ParseKey(cfg.Telematics.SealKey)
		if err != nil {
			return err
		}
		sealed, err := telematics.Seal(key, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, sealed)
		return nil
	},
}

func init() {
	sealCmd.Flags().BoolVar(&sealGenerateKey, "generate-key", false, "print a new random seal key instead")
}
