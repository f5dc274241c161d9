package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/palaidn/palaidn/validator/config"
	"github.com/palaidn/palaidn/validator/constant"
	"github.com/palaidn/palaidn/validator/db"
	"github.com/palaidn/palaidn/validator/logger"
	"github.com/palaidn/palaidn/validator/statestore"
)

// Set at build time with -ldflags "-X main.Version=... -X main.Commit=...".
var (
	Version = "dev"
	Commit  = ""
)

const flagLoadState = "load-state"

func InitRootCmd(rootCmd *cobra.Command) {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(stateCmd())
	rootCmd.AddCommand(versionCmd())
}

func initCmd() *cobra.Command {
	var (
		netUID    uint16
		hotkey    string
		urls      []string
		ownUID    int
		refURL    string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config to <home>/config/palaidn_config.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, _ := cmd.Flags().GetString(flagHome)
			path := filepath.Join(home, constant.ConfigSubdir, constant.ConfigFileName)
			if _, err := os.Stat(path); err == nil && !overwrite {
				return fmt.Errorf("config already exists at %s, use --overwrite to replace it", path)
			}

			cfg, err := config.LoadDefaultConfig()
			if err != nil {
				return err
			}
			cfg.NodeHome = home
			if cmd.Flags().Changed("netuid") {
				cfg.NetUID = netUID
			}
			if hotkey != "" {
				cfg.WalletHotkey = hotkey
			}
			if len(urls) > 0 {
				cfg.LedgerGRPCURLs = urls
			}
			if cmd.Flags().Changed("own-uid") {
				cfg.OwnUID = ownUID
			}
			if refURL != "" {
				cfg.ReferenceAPIURL = refURL
			}

			if err := config.Save(cfg, home); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().Uint16Var(&netUID, "netuid", 0, "subnet identifier")
	cmd.Flags().StringVar(&hotkey, "hotkey", "", "hotkey the validator commits weights with")
	cmd.Flags().StringSliceVar(&urls, "ledger-grpc-urls", nil, "ledger gRPC endpoints")
	cmd.Flags().IntVar(&ownUID, "own-uid", -1, "own uid in the membership, -1 if not registered")
	cmd.Flags().StringVar(&refURL, "reference-api-url", "", "reference wallet data endpoint")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing config")
	return cmd
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the validator round loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, _ := cmd.Flags().GetString(flagHome)
			cfg, err := config.Load(home)
			if err != nil {
				return err
			}

			if raw, _ := cmd.Flags().GetString(flagLoadState); raw != "" {
				load, err := cast.ToBoolE(raw)
				if err != nil {
					return fmt.Errorf("invalid --%s value %q: %w", flagLoadState, raw, err)
				}
				cfg.LoadState = load
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runValidator(ctx, &cfg)
		},
	}
	cmd.Flags().String(flagLoadState, "", "restore persisted state at startup (true/false), overrides load_state")
	return cmd
}

func stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the persisted validator state",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, _ := cmd.Flags().GetString(flagHome)
			cfg, err := config.Load(home)
			if err != nil {
				return err
			}
			log := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.LogSampler)

			database, err := db.OpenFileDB(filepath.Join(home, constant.DatabasesSubdir), constant.StateDBFileName, true)
			if err != nil {
				return err
			}
			defer database.Close()

			st := statestore.NewStore(database.Client(), log)
			snap, found, err := st.Load(cmd.Context())
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintln(cmd.OutOrStdout(), "no persisted state")
				return nil
			}
			commits, err := st.RecentCommits(cmd.Context(), 10)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				State   statestore.Snapshot `json:"state"`
				Commits interface{}         `json:"recent_commits"`
			}{snap, commits})
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print palaidnd version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Name:           %s\n", "palaidnd")
			fmt.Printf("Version:        %s\n", Version)
			fmt.Printf("Commit:         %s\n", Commit)
			fmt.Printf("Subnet Version: %d\n", constant.SubnetVersion)
		},
	}
}
