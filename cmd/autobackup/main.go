package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"autobackup/internal/app"
	"autobackup/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// command identifies the CLI command being run (e.g. "sync", "serve").
func newApp(ctx context.Context, command string) (*app.App, error) {
	cfg, _, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(ctx, cfg, command)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

var rootCmd = &cobra.Command{
	Use:          "autobackup",
	Short:        "Personal file backup agent",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		deviceID := uuid.New().String()
		baseDir := defaults.BaseDir

		cfg := config.NewConfig(deviceID, baseDir)
		cfg.Remote = config.RemoteConfig{
			Type:   "filesystem",
			Name:   "local",
			FSRoot: filepath.Join(baseDir, "remote"),
		}
		cfg.Database = config.DatabaseConfig{Type: "sqlite", DataDir: baseDir}

		if cfg.Access.APIKey, err = randomSecret(); err != nil {
			return fmt.Errorf("generating api key: %w", err)
		}
		if cfg.Access.TokenSecret, err = randomSecret(); err != nil {
			return fmt.Errorf("generating token secret: %w", err)
		}

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Device ID: %s\n", deviceID)
		fmt.Printf("Base Dir:  %s\n", baseDir)
		fmt.Printf("API Key:   %s\n", cfg.Access.APIKey)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, defaults, err := app.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Device ID:     %s\n", cfg.DeviceID)
		fmt.Printf("Device Label:  %s\n", cfg.DeviceLabel)
		fmt.Printf("Base Dir:      %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:       %s\n", cfg.LogDir)
		fmt.Printf("Remote:        %s (%s)\n", cfg.Remote.Name, cfg.Remote.Type)
		fmt.Printf("Database:      %s\n", cfg.Database.Type)
		fmt.Printf("Listen:        %s\n", cfg.Server.Listen)
		fmt.Printf("Scan Interval: %s\n", cfg.Backup.ScanInterval())
		fmt.Printf("Folders:\n")
		for _, f := range cfg.Backup.MonitoredFolders {
			fmt.Printf("  %s\n", f)
		}
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "sync")
		if err != nil {
			return err
		}
		defer a.Close()

		report := a.Sync(cmd.Context())
		for _, f := range report.Uploaded {
			fmt.Printf("uploaded  %s  %s\n", f.ContentHash[:12], f.OriginalPath)
		}
		for _, f := range report.Failed {
			fmt.Printf("failed    %s: %v\n", f.File.Path, f.Err)
		}
		for _, folder := range report.MissingFolders {
			fmt.Printf("missing   %s\n", folder)
		}
		fmt.Println(report.Summary())
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the periodic scheduler and the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "serve")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Serve(cmd.Context())
	},
}

// files command
var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List backed-up files",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		a, err := newApp(cmd.Context(), "files")
		if err != nil {
			return err
		}
		defer a.Close()

		files, err := a.ListFiles(cmd.Context(), limit, offset)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("No files backed up.")
			return nil
		}
		for _, f := range files {
			fmt.Printf("%s  %s  %8.2f MB  %-9s  %s\n",
				f.ContentHash[:12],
				f.UploadedAt.Format("2006-01-02 15:04:05"),
				f.SizeMB(),
				f.Kind,
				f.DisplayName,
			)
		}
		return nil
	},
}

// search command
var searchCmd = &cobra.Command{
	Use:   "search KEYWORD",
	Short: "Search files by name or tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "search")
		if err != nil {
			return err
		}
		defer a.Close()

		files, err := a.Search(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("No matching files.")
			return nil
		}
		for _, f := range files {
			fmt.Printf("%s  %s  [%s]\n", f.ContentHash[:12], f.DisplayName, strings.Join(f.Tags, ", "))
		}
		return nil
	},
}

// show command
var showCmd = &cobra.Command{
	Use:   "show HASH",
	Short: "Show one file record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "show")
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := a.Show(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Hash:     %s\n", f.ContentHash)
		fmt.Printf("Name:     %s\n", f.DisplayName)
		fmt.Printf("Path:     %s\n", f.OriginalPath)
		fmt.Printf("Size:     %d bytes\n", f.SizeBytes)
		fmt.Printf("Kind:     %s\n", f.Kind)
		fmt.Printf("Device:   %s\n", f.DeviceLabel)
		fmt.Printf("Uploaded: %s\n", f.UploadedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Tags:     %s\n", strings.Join(f.Tags, ", "))
		fmt.Printf("Remote:   %s\n", f.RemoteURL)
		fmt.Printf("Deleted:  %t\n", f.IsDeleted)
		return nil
	},
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete HASH",
	Short: "Delete a file from the remote store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "delete")
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := a.Delete(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %s (%s)\n", f.DisplayName, f.ContentHash)
		return nil
	},
}

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "View catalog statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "stats")
		if err != nil {
			return err
		}
		defer a.Close()

		stats, kinds, err := a.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Files:          %d (%.2f MB)\n", stats.TotalFiles, stats.TotalSizeMB)
		fmt.Printf("Lifetime files: %d (%.2f MB)\n", stats.LifetimeFiles, stats.LifetimeSizeMB)
		if stats.LastBackupTime != nil {
			fmt.Printf("Last backup:    %s\n", stats.LastBackupTime.Format("2006-01-02 15:04:05"))
		}
		if stats.LastSyncTime != nil {
			fmt.Printf("Last sync:      %s\n", stats.LastSyncTime.Format("2006-01-02 15:04:05"))
		}
		for _, k := range kinds {
			fmt.Printf("  %-9s %6d  %d bytes\n", k.Kind, k.Count, k.SizeBytes)
		}
		return nil
	},
}

// devices command
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List known devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "devices")
		if err != nil {
			return err
		}
		defer a.Close()

		devices, err := a.Devices(cmd.Context())
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("No devices recorded.")
			return nil
		}
		for _, d := range devices {
			fmt.Printf("%s  %-20s  %s  %d file(s)\n",
				d.DeviceID,
				d.DeviceLabel,
				d.LastSeenAt.Format("2006-01-02 15:04:05"),
				d.FileCount,
			)
		}
		return nil
	},
}

// activity command
var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "View recent activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "activity")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Activity(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No activity recorded.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("#%d  %s  %-7s  %s\n",
				e.ID,
				e.Timestamp.Format("2006-01-02 15:04:05"),
				e.Kind,
				e.Detail,
			)
		}
		return nil
	},
}

// catalog command
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the catalog database",
}

var catalogBackupCmd = &cobra.Command{
	Use:   "backup PATH",
	Short: "Write a copy of the catalog database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "catalog-backup")
		if err != nil {
			return err
		}
		defer a.Close()

		dest, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}
		if err := a.BackupCatalog(dest); err != nil {
			return err
		}
		fmt.Printf("Catalog written to %s\n", dest)
		return nil
	},
}

var catalogStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "View the catalog schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "catalog-status")
		if err != nil {
			return err
		}
		defer a.Close()

		status, err := a.CatalogStatus()
		if err != nil {
			return err
		}
		fmt.Printf("Schema version: %d (latest %d)\n", status.Version, status.Latest)
		if status.Dirty {
			fmt.Println("Schema is dirty: a migration failed part way.")
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// catalog subcommands
	catalogCmd.AddCommand(catalogBackupCmd)
	catalogCmd.AddCommand(catalogStatusCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(filesCmd)
	filesCmd.Flags().IntP("limit", "n", 50, "Maximum number of files to show")
	filesCmd.Flags().Int("offset", 0, "Number of files to skip")
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(activityCmd)
	activityCmd.Flags().IntP("limit", "n", 50, "Maximum number of entries to show")
	rootCmd.AddCommand(catalogCmd)
}
