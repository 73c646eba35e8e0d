package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tomyedwab/wifigrid/api"
	"github.com/tomyedwab/wifigrid/auth"
	"github.com/tomyedwab/wifigrid/database"
	"github.com/tomyedwab/wifigrid/state"
	"github.com/tomyedwab/wifigrid/tui"
)

func envOr(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envBool(name string) bool {
	b, _ := strconv.ParseBool(os.Getenv(name))
	return b
}

func exportCsv(ctx context.Context, dao *state.Dao, path string) error {
	results, err := dao.GetRankedResultsSnapshot(ctx)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := state.WriteResultsCsv(f, results, nil); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func main() {
	dbPath := flag.String("db", envOr("WIFIGRID_DB", "data/wifi.db"), "Path to the SQLite database")
	driver := flag.String("driver", envOr("WIFIGRID_DRIVER", database.DriverCgo), "SQLite driver, sqlite3 or sqlite")
	addr := flag.String("addr", envOr("WIFIGRID_ADDR", ":8080"), "HTTP listen address")
	secretPath := flag.String("secret", envOr("WIFIGRID_JWT_SECRET", "data/jwtsecret.key"), "Path to the JWT signing key")
	disableAuth := flag.Bool("disable-auth", envBool("WIFIGRID_DISABLE_AUTH"), "For dev only, serve the API without tokens")
	allowOrigin := flag.String("allow-origin", os.Getenv("WIFIGRID_ALLOW_ORIGIN"), "Origin allowed to make cross-origin requests")
	issueToken := flag.String("issue-token", "", "Print a token for this device name and exit")
	tokenTTL := flag.Duration("token-ttl", 30*24*time.Hour, "Lifetime of tokens printed by -issue-token")
	backupPath := flag.String("backup", "", "Write a copy of the database to this path and exit")
	exportPath := flag.String("export-csv", "", "Write every test result as CSV to this path and exit")
	runTUI := flag.Bool("tui", false, "Show the live terminal viewer while serving")
	flag.Parse()

	// Logs go to a file while the terminal viewer owns the screen
	var logOutput io.Writer = os.Stdout
	if *runTUI {
		logDir := filepath.Dir(*dbPath)
		logFile, err := os.OpenFile(filepath.Join(logDir, "wifigrid.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if errors.Is(err, os.ErrNotExist) && os.MkdirAll(logDir, 0755) == nil {
			logFile, err = os.OpenFile(filepath.Join(logDir, "wifigrid.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		}
		if err == nil {
			defer logFile.Close()
			logOutput = logFile
		} else {
			logOutput = io.Discard
		}
	}
	logger := slog.New(slog.NewJSONHandler(logOutput, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *issueToken != "" {
		secret, err := auth.LoadSecretKey(*secretPath)
		if err != nil {
			logger.Error("Failed to load secret key", "error", err)
			os.Exit(1)
		}
		token, err := auth.IssueToken(secret, *issueToken, *tokenTTL)
		if err != nil {
			logger.Error("Failed to issue token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wdb, err := state.Open(ctx, database.Config{
		Path:   *dbPath,
		Driver: *driver,
		Logger: logger,
	})
	if err != nil {
		logger.Error("Failed to open database", "path", *dbPath, "error", err)
		os.Exit(1)
	}
	defer wdb.Close()

	if *backupPath != "" {
		if err := wdb.Backup(ctx, *backupPath); err != nil {
			logger.Error("Backup failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if *exportPath != "" {
		if err := exportCsv(ctx, wdb.Dao(), *exportPath); err != nil {
			logger.Error("Export failed", "path", *exportPath, "error", err)
			os.Exit(1)
		}
		logger.Info("Exported results", "path", *exportPath)
		return
	}

	var secret []byte
	if !*disableAuth {
		secret, err = auth.LoadSecretKey(*secretPath)
		if err != nil {
			logger.Error("Failed to load secret key", "error", err)
			os.Exit(1)
		}
	}

	server, err := api.NewServer(api.Config{
		Database:    wdb,
		SecretKey:   secret,
		DisableAuth: *disableAuth,
		AllowOrigin: *allowOrigin,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("Failed to create API server", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{Addr: *addr, Handler: server}
	go func() {
		logger.Info("Starting HTTP server", "address", *addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	if *runTUI {
		program := tea.NewProgram(tui.New(wdb.Dao()), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			logger.Error("Terminal viewer failed", "error", err)
		}
		stop()
	}

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", "error", err)
	}
}
