package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deusflow/ainews/internal/app"
	"github.com/deusflow/ainews/internal/storage"
)

var recipientsCmd = &cobra.Command{
	Use:   "recipients",
	Short: "List or manage email recipients",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		src, closeSrc, err := app.OpenRecipients(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeSrc()

		list, err := src.Recipients(cmd.Context())
		if err != nil {
			return fmt.Errorf("loading recipients: %w", err)
		}
		if cfg.Recipients.DatabaseURL != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Source: %s\n", storage.MaskDSN(cfg.Recipients.DatabaseURL))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Source: static list")
		}
		for _, r := range list {
			fmt.Fprintln(cmd.OutOrStdout(), storage.MaskEmail(r))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d active recipient(s)\n", len(list))
		return nil
	},
}

var recipientsAddCmd = &cobra.Command{
	Use:   "add EMAIL",
	Short: "Add or reactivate a recipient",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Add(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", storage.MaskEmail(args[0]))
		return nil
	},
}

var recipientsRemoveCmd = &cobra.Command{
	Use:   "remove EMAIL",
	Short: "Deactivate a recipient",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Deactivate(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deactivated %s\n", storage.MaskEmail(args[0]))
		return nil
	},
}

func openStore(cmd *cobra.Command) (*storage.PostgresRecipients, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Recipients.DatabaseURL == "" {
		return nil, errors.New("recipients.database_url is not set")
	}
	return storage.NewPostgresRecipients(cmd.Context(), cfg.Recipients.DatabaseURL)
}

func init() {
	recipientsCmd.AddCommand(recipientsAddCmd)
	recipientsCmd.AddCommand(recipientsRemoveCmd)
}
