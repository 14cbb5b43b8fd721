package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"agentgate/internal/config"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

// checkReport tallies doctor results and renders them.
type checkReport struct {
	out                    io.Writer
	passed, warned, failed int
}

func (r *checkReport) pass(check, detail string) {
	r.passed++
	fmt.Fprintf(r.out, "  %s %-20s %s\n", color.GreenString("[PASS]"), check, detail)
}

func (r *checkReport) fail(check, detail string) {
	r.failed++
	fmt.Fprintf(r.out, "  %s %-20s %s\n", color.RedString("[FAIL]"), check, detail)
}

func (r *checkReport) warn(check, detail string) {
	r.warned++
	fmt.Fprintf(r.out, "  %s %-20s %s\n", color.YellowString("[WARN]"), check, detail)
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the gateway setup",
		Long: `Verifies that the configuration, knowledge database, listen port and
upstream endpoints are set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "agentgate doctor v%s\n\n", version)

			r := &checkReport{out: out}
			cfg := runChecks(r, resolveConfigPath())

			fmt.Fprintf(out, "\nResults: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
			if r.failed > 0 {
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			if cfg != nil && r.warned == 0 {
				fmt.Fprintln(out, color.GreenString("All checks passed."))
			}
			return nil
		},
	}
}

// runChecks returns the loaded config, or nil when it could not be loaded.
func runChecks(r *checkReport, cfgPath string) *config.Config {
	if _, err := os.Stat(cfgPath); err != nil {
		r.warn("Config file", fmt.Sprintf("not found at %s, defaults and environment apply", cfgPath))
	} else {
		r.pass("Config file", cfgPath)
	}

	cfg, err := loadConfig()
	if err != nil {
		r.fail("Config validation", err.Error())
		return nil
	}
	r.pass("Config validation", "valid")

	enabled := 0
	for name, on := range map[string]bool{
		"telegram": cfg.Channels.Telegram.Enabled,
		"whatsapp": cfg.Channels.WhatsApp.Enabled,
		"discord":  cfg.Channels.Discord.Enabled,
	} {
		if on {
			enabled++
			continue
		}
		r.warn("Channel: "+name, "disabled")
	}
	if enabled == 0 {
		r.fail("Channels", "no channels enabled")
	}

	if cfg.Brain.MemoryBackend == "knowledge" {
		if err := checkDatabase(cfg.Knowledge.DBPath); err != nil {
			r.fail("Knowledge DB", err.Error())
		} else {
			r.pass("Knowledge DB", cfg.Knowledge.DBPath)
		}
	}

	if cfg.Upstream.BaseURL == "" {
		r.warn("Upstream", "no inference baseUrl, replies will use the fallback text")
	} else {
		r.pass("Upstream", cfg.Upstream.BaseURL)
	}

	if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
		r.warn("Server port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
	} else {
		r.pass("Server port", fmt.Sprintf(":%d available", cfg.Server.Port))
	}

	if cfg.General.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
			r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
		} else {
			r.pass("Log file", cfg.General.LogFile)
		}
	}
	return cfg
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_probe (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_probe")
	return nil
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return ln.Close()
}
