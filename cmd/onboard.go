package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/attache/internal/config"
)

const envFile = ".env"

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup wizard",
		Long:  "Walks through the first-time setup and writes attache.json5 plus a .env file with the secrets.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard()
		},
	}
}

// onboardAnswers collects everything the wizard asks for.
type onboardAnswers struct {
	ownerID  string
	timezone string

	botToken string
	upstream []config.UpstreamAccount
	discord  string

	anthropicKey string
	openaiKey    string

	dsn string
}

func runOnboard() error {
	fmt.Println("attache setup")
	fmt.Println()

	a := onboardAnswers{
		timezone: "Europe/Moscow",
		dsn:      "sqlite:attache.db",
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Owner Telegram ID").
				Description("Numeric user id of the single person this daemon serves (ask @userinfobot).").
				Value(&a.ownerID).
				Validate(func(s string) error {
					if _, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err != nil {
						return fmt.Errorf("must be a numeric Telegram id")
					}
					return nil
				}),
			huh.NewInput().
				Title("Timezone").
				Description("IANA zone for briefings, deadlines and day boundaries.").
				Value(&a.timezone).
				Validate(func(s string) error {
					if _, err := time.LoadLocation(strings.TrimSpace(s)); err != nil {
						return fmt.Errorf("unknown IANA zone")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Control bot token").
				Description("BotFather token of the private bot the owner talks to.").
				EchoMode(huh.EchoModePassword).
				Value(&a.botToken).
				Validate(requiredField("control bot token")),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Anthropic API key").
				Description("Primary backend. Leave empty to run on the fallback only.").
				EchoMode(huh.EchoModePassword).
				Value(&a.anthropicKey),
			huh.NewInput().
				Title("OpenAI-compatible API key").
				Description("Fallback backend, optional.").
				EchoMode(huh.EchoModePassword).
				Value(&a.openaiKey),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Database DSN").
				Description("sqlite:attache.db for a single host, postgres://... for a server.").
				Value(&a.dsn).
				Validate(requiredField("database DSN")),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("setup aborted")
			return nil
		}
		return err
	}

	if a.anthropicKey == "" && a.openaiKey == "" {
		return fmt.Errorf("at least one LLM backend key is required")
	}

	if err := collectUpstreams(&a); err != nil {
		return err
	}
	if len(a.upstream) == 0 && a.discord == "" {
		return fmt.Errorf("at least one upstream account is required")
	}

	if err := writeOnboardFiles(&a); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Setup complete. Files written:")
	fmt.Printf("  %s  (settings, safe to commit)\n", resolveConfigPath())
	fmt.Printf("  %s             (secrets, keep out of version control)\n", envFile)
	fmt.Println()
	fmt.Println("Start the daemon:")
	fmt.Println()
	fmt.Println("  attache")
	fmt.Println()
	return nil
}

// collectUpstreams loops a small form until the user stops adding accounts.
func collectUpstreams(a *onboardAnswers) error {
	for {
		label := fmt.Sprintf("account%d", len(a.upstream)+1)
		token := ""
		title := "Add an upstream listener account?"
		if len(a.upstream) > 0 {
			title = "Add another upstream account?"
		}

		add := len(a.upstream) == 0
		confirm := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description("A bot token added to the monitored chats. Messages it sees feed the classifier.").
				Value(&add),
		))
		if err := confirm.Run(); err != nil {
			return err
		}
		if !add {
			break
		}

		acct := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Account label").
				Description("Short name shown in notices, e.g. work.").
				Value(&label).
				Validate(requiredField("label")),
			huh.NewInput().
				Title("Account bot token").
				EchoMode(huh.EchoModePassword).
				Value(&token).
				Validate(requiredField("token")),
		))
		if err := acct.Run(); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				break
			}
			return err
		}
		a.upstream = append(a.upstream, config.UpstreamAccount{
			Label: strings.TrimSpace(label),
			Token: strings.TrimSpace(token),
		})
	}

	useDiscord := false
	confirm := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Listen on Discord too?").
			Value(&useDiscord),
	))
	if err := confirm.Run(); err != nil {
		return err
	}
	if useDiscord {
		dc := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Discord bot token").
				EchoMode(huh.EchoModePassword).
				Value(&a.discord).
				Validate(requiredField("discord token")),
		))
		if err := dc.Run(); err != nil {
			return err
		}
	}
	return nil
}

func requiredField(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

func writeOnboardFiles(a *onboardAnswers) error {
	cfgPath := resolveConfigPath()
	for _, path := range []string{cfgPath, envFile} {
		if _, err := os.Stat(path); err == nil {
			overwrite := false
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("%s already exists. Overwrite?", path)).
					Value(&overwrite),
			))
			if err := form.Run(); err != nil {
				return err
			}
			if !overwrite {
				return fmt.Errorf("refusing to overwrite %s", path)
			}
		}
	}

	if err := os.WriteFile(cfgPath, []byte(renderConfigFile(a)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", cfgPath, err)
	}
	if err := os.WriteFile(envFile, []byte(renderEnvFile(a)), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", envFile, err)
	}
	return nil
}

// renderConfigFile emits a commented JSON5 settings file. Secrets never
// land here; they go to .env.
func renderConfigFile(a *onboardAnswers) string {
	var sb strings.Builder
	sb.WriteString("// attache settings. Secrets live in .env, not here.\n")
	sb.WriteString("// Env vars (ATTACHE_*) override any value in this file.\n")
	sb.WriteString("{\n")
	fmt.Fprintf(&sb, "  owner: {\n    id: %s,\n    timezone: %q,\n  },\n",
		strings.TrimSpace(a.ownerID), strings.TrimSpace(a.timezone))
	sb.WriteString("  schedule: {\n")
	sb.WriteString("    briefing_hour: 9,\n")
	sb.WriteString("    deadline_hour: 14,\n")
	sb.WriteString("    batch_hour: 17,\n")
	sb.WriteString("    digest_hour: 21,\n")
	sb.WriteString("    weekly_hour: 10, // Sunday\n")
	sb.WriteString("  },\n")
	sb.WriteString("  persona: {\n    path: \"persona.md\",\n    watch: true,\n  },\n")
	sb.WriteString("}\n")
	return sb.String()
}

func renderEnvFile(a *onboardAnswers) string {
	var sb strings.Builder
	sb.WriteString("# attache secrets. Keep this file out of version control.\n")
	fmt.Fprintf(&sb, "ATTACHE_TELEGRAM_TOKEN=%s\n", strings.TrimSpace(a.botToken))
	if len(a.upstream) > 0 {
		pairs := make([]string, len(a.upstream))
		for i, up := range a.upstream {
			pairs[i] = up.Label + "=" + up.Token
		}
		fmt.Fprintf(&sb, "ATTACHE_UPSTREAM_ACCOUNTS=%s\n", strings.Join(pairs, ","))
	}
	if a.discord != "" {
		fmt.Fprintf(&sb, "ATTACHE_DISCORD_TOKEN=%s\n", strings.TrimSpace(a.discord))
	}
	if a.anthropicKey != "" {
		fmt.Fprintf(&sb, "ATTACHE_ANTHROPIC_API_KEY=%s\n", strings.TrimSpace(a.anthropicKey))
	}
	if a.openaiKey != "" {
		fmt.Fprintf(&sb, "ATTACHE_OPENAI_API_KEY=%s\n", strings.TrimSpace(a.openaiKey))
	}
	fmt.Fprintf(&sb, "ATTACHE_DB_DSN=%s\n", strings.TrimSpace(a.dsn))
	return sb.String()
}
