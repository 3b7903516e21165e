package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/auth"
	"github.com/ebogdum/archivefs/config"
	"github.com/ebogdum/archivefs/loader"
	"github.com/ebogdum/archivefs/server"
)

var rootCmd = &cobra.Command{
	Use:   "archivefs",
	Short: "archivefs - archive manager for save data, ext save data and SD card storage",
	Long: `archivefs hosts the archive manager: it maps archive types onto host storage,
hands out archive handles and serves an authenticated admin API over them.`,
	SilenceUsage: true,
}

var serverCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin API server",
	RunE:  runServer,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  "Validate the configuration and display the loaded settings",
	RunE:  validateConfig,
}

var (
	configFilePath string
	programDir     string
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&configFilePath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&programDir, "program-dir", "", "Directory holding an extracted program image to register as SelfNCCH")

	configCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serverCmd, configCmd)
	addAdminCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runServer starts the admin API server
func runServer(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg, logger := rt.cfg, rt.logger

	if len(cfg.Auth.APIKeys) == 0 {
		logger.Warn("No API keys configured, every /v1 request will be rejected")
	}
	authenticator := auth.NewAPIKeyAuthenticator(cfg.Auth.APIKeys)

	logger.Info("Initializing HTTP router")
	router := server.NewRouter(rt.manager, authenticator, authenticator, &cfg.Server, logger)

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", cfg.Server.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Info("Server exited gracefully")
	return nil
}

// validateConfig validates the configuration and displays settings
func validateConfig(cmd *cobra.Command, args []string) error {
	fmt.Println("Validating configuration...")

	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		color.Red("✗ Configuration validation failed: %v", err)
		return err
	}

	color.Green("✓ Configuration is valid")
	fmt.Printf("Listen Address: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("API Keys: %d\n", len(cfg.Auth.APIKeys))
	fmt.Printf("NAND Root: %s\n", cfg.Storage.NANDRoot)
	fmt.Printf("SD Card Backend: %s\n", cfg.Storage.SDMCBackend)
	if cfg.Storage.SDMCBackend == "s3" {
		fmt.Printf("S3 Bucket: %s\n", cfg.Storage.S3BucketName)
		fmt.Printf("S3 Region: %s\n", cfg.Storage.S3Region)
	} else {
		fmt.Printf("SD Card Root: %s\n", cfg.Storage.SDMCRoot)
	}
	fmt.Printf("Identity: %s / %s\n", cfg.Identity.SystemID, cfg.Identity.SDCardID)
	fmt.Printf("Record Store: %s\n", cfg.MetadataStore.Type)
	switch cfg.MetadataStore.Type {
	case "sqlite":
		fmt.Printf("SQLite Path: %s\n", cfg.MetadataStore.SQLitePath)
	case "postgres":
		fmt.Printf("Postgres DSN: %s\n", maskDSN(cfg.MetadataStore.DSN))
	case "redis":
		fmt.Printf("Redis Address: %s\n", cfg.MetadataStore.RedisAddr)
	}
	fmt.Printf("Lock Manager: %s\n", cfg.DLM.Type)

	return nil
}

// maskDSN masks sensitive parts of the database DSN for display
func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if len(dsn) > 20 {
		return dsn[:10] + "***" + dsn[len(dsn)-7:]
	}
	return "***"
}

// registerProgram registers the program image in --program-dir, if given
func registerProgram(rt *runtime) error {
	if programDir == "" {
		return nil
	}
	app, err := loader.NewDirectoryLoader(programDir)
	if err != nil {
		return fmt.Errorf("failed to open program directory: %w", err)
	}
	return rt.manager.RegisterSelfNCCH(app)
}
