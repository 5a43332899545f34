package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/attache/internal/config"
	"github.com/nextlevelbuilder/attache/internal/store/sqldb"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("attache doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, env-only)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Validate: FAILED (%s)\n", err)
	} else {
		fmt.Println("  Validate: OK")
	}

	fmt.Println()
	fmt.Println("  Owner:")
	fmt.Printf("    %-12s %d\n", "ID:", cfg.Owner.ID)
	fmt.Printf("    %-12s %s\n", "Timezone:", cfg.Owner.Timezone)

	fmt.Println()
	fmt.Println("  Accounts:")
	checkSecret("Control bot", cfg.Telegram.BotToken)
	for _, up := range cfg.Telegram.Upstreams {
		checkSecret("Upstream ["+up.Label+"]", up.Token)
	}
	if cfg.Discord.Token != "" {
		checkSecret("Discord", cfg.Discord.Token)
	}

	fmt.Println()
	fmt.Println("  Providers:")
	checkSecret("Anthropic", cfg.Providers.Anthropic.APIKey)
	checkSecret("OpenAI", cfg.Providers.OpenAI.APIKey)
	fmt.Printf("    %-12s %s\n", "Mode:", cfg.Providers.Mode)

	fmt.Println()
	fmt.Println("  Database:")
	checkDatabase(cfg)

	fmt.Println()
	fmt.Printf("  Persona:  %s", cfg.Persona.Path)
	if cfg.Persona.Path == "" {
		fmt.Println(" (built-in)")
	} else if _, err := os.Stat(cfg.Persona.Path); err != nil {
		fmt.Println(" (NOT FOUND, built-in fallback)")
	} else {
		fmt.Println(" (OK)")
	}

	fmt.Printf("  Schedule: briefing %02d:00, deadlines %02d:00, batch %02d:00, digest %02d:00, weekly sun %02d:00 (%s)\n",
		cfg.Schedule.BriefingHour, cfg.Schedule.DeadlineHour, cfg.Schedule.BatchHour,
		cfg.Schedule.DigestHour, cfg.Schedule.WeeklyHour, cfg.Owner.Timezone)

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkDatabase(cfg *config.Config) {
	if cfg.Database.DSN == "" {
		fmt.Printf("    %-12s (not configured)\n", "DSN:")
		return
	}
	kind := "sqlite"
	if strings.HasPrefix(cfg.Database.DSN, "postgres") {
		kind = "postgres"
	}
	fmt.Printf("    %-12s %s\n", "Driver:", kind)

	st, err := sqldb.Open(cfg.Database.DSN, cfg.Database.MinConns, cfg.Database.MaxConns)
	if err != nil {
		fmt.Printf("    %-12s OPEN FAILED (%s)\n", "Status:", err)
		return
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	fmt.Printf("    %-12s connected\n", "Status:")

	m, err := st.Migrator()
	if err != nil {
		fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", err)
		return
	}
	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		fmt.Printf("    %-12s empty (run: attache migrate up)\n", "Schema:")
	case err != nil:
		fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", err)
	case dirty:
		fmt.Printf("    %-12s v%d (DIRTY, run: attache migrate force %d)\n", "Schema:", v, v-1)
	default:
		fmt.Printf("    %-12s v%d\n", "Schema:", v)
	}
}

func checkSecret(name, value string) {
	if value == "" {
		fmt.Printf("    %-12s (not configured)\n", name+":")
		return
	}
	fmt.Printf("    %-12s %s\n", name+":", maskSecret(value))
}

// maskSecret keeps just enough of a credential to recognize it.
func maskSecret(s string) string {
	if len(s) < 12 {
		return "****"
	}
	return s[:4] + strings.Repeat("*", 6) + s[len(s)-4:]
}
