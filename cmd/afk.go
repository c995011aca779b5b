package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/wabot/internal/afk"
)

// The daemon reads the away state at startup; changes made here while it
// runs take effect on its next restart.
func afkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "afk",
		Short: "Show or change the owner's away state",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether the owner is away",
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, closeFn, err := openGate(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			info, ok := gate.Info()
			if !ok {
				fmt.Println("Not away.")
				return nil
			}
			fmt.Printf("Away since %s (%s)\nReason: %s\n",
				info.Since.Local().Format(time.RFC1123), afk.FormatDuration(info.Duration), info.Reason)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "on [reason]",
		Short: "Mark the owner away",
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, closeFn, err := openGate(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := gate.SetActive(cmd.Context(), strings.Join(args, " ")); err != nil {
				return fmt.Errorf("save away state: %w", err)
			}
			info, _ := gate.Info()
			fmt.Printf("Away: %s\n", info.Reason)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "off",
		Short: "End the away period",
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, closeFn, err := openGate(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			info, was, err := gate.Clear(cmd.Context())
			if err != nil {
				return fmt.Errorf("save away state: %w", err)
			}
			if !was {
				fmt.Println("Not away.")
				return nil
			}
			fmt.Printf("Back after %s.\n", afk.FormatDuration(info.Duration))
			return nil
		},
	})
	return cmd
}

func openGate(ctx context.Context) (*afk.Gate, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	stores, err := openStores(cfg)
	if err != nil {
		return nil, nil, err
	}
	gate := afk.New(stores.Availability)
	if err := gate.Load(ctx); err != nil {
		stores.Close()
		return nil, nil, err
	}
	return gate, func() { stores.Close() }, nil
}
