package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/colmadogutierrez/debtbook/internal/bootstrap"
	"github.com/colmadogutierrez/debtbook/pkg/enums"
	"github.com/colmadogutierrez/debtbook/pkg/security"
)

const defaultKeyLength = 32

func init() {
	rootCmd.AddCommand(exportCmd, importCmd, summaryCmd, backupCmd, restoreCmd, signInCmd, hashKeyCmd)

	exportCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
	importCmd.Flags().StringP("file", "f", "", "ledger JSON file (- for stdin)")
	_ = importCmd.MarkFlagRequired("file")
	signInCmd.Flags().String("access-token", "", "access token from the consent flow")
	signInCmd.Flags().String("refresh-token", "", "refresh token from the consent flow")
	_ = signInCmd.MarkFlagRequired("access-token")
	_ = signInCmd.MarkFlagRequired("refresh-token")
	hashKeyCmd.Flags().String("key", "", "key to hash; a random key is generated when empty")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the ledger as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			snapshot, err := app.Ledger.Snapshot()
			if err != nil {
				return err
			}
			if output == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(snapshot))
				return err
			}
			return os.WriteFile(output, snapshot, 0o600)
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Replace the ledger with a JSON document",
	Long: `Replace the whole ledger with the clients in a JSON document.
The document is validated first; an invalid file leaves the ledger untouched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		raw, err := readInput(cmd, file)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			if err := app.Ledger.ReplaceAllJSON(ctx, raw); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), app.Ledger.Summary())
		})
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show total debt and client counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			return printJSON(cmd.OutOrStdout(), app.Ledger.Summary())
		})
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload today's ledger snapshot now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			outcome, err := app.Backups.Backup(ctx)
			fmt.Fprintln(cmd.OutOrStdout(), "backup:", outcome)
			if err != nil {
				return err
			}
			if outcome != enums.BackupOutcomeUploaded {
				return fmt.Errorf("backup not uploaded: %s", outcome)
			}
			return nil
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the ledger with today's remote snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			if err := app.Restorer.Restore(ctx); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), app.Ledger.Summary())
		})
	},
}

var signInCmd = &cobra.Command{
	Use:   "signin",
	Short: "Store tokens obtained from the provider's consent flow",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		accessToken, _ := cmd.Flags().GetString("access-token")
		refreshToken, _ := cmd.Flags().GetString("refresh-token")
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			record, err := app.Tokens.SignIn(ctx, accessToken, refreshToken)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s until %s\n", record.User.Email, record.ExpirationDate.Local().Format("2006-01-02 15:04"))
			return nil
		})
	},
}

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key",
	Short: "Hash an API key for DEBTBOOK_API_KEY_HASH",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		key, _ := cmd.Flags().GetString("key")
		if key == "" {
			if key, err = security.GenerateAPIKey(defaultKeyLength); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "key: ", key)
		}
		hash, err := security.HashAPIKey(key, cfg.API)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "hash:", hash)
		return nil
	},
}

func readInput(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(file)
}

func printJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
