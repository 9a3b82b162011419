package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "PRIVMSG"

// newRootCmd builds the command tree. Each tree owns its viper instance.
func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "privmsgctl",
		Short:         "Operate a private messaging store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v)
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (yaml, toml or json)")
	flags.String("driver", "memory", "store backend: postgres, mongo or memory")
	flags.String("dsn", "", "connection string of the store backend")
	flags.String("database", "privmsg", "mongo database name")
	flags.String("users", "", "comma separated user ids of the static directory")
	flags.String("redis", "", "redis address for events and reminders (optional)")
	flags.String("log-level", "warn", "log level: debug, info, warn or error")
	flags.Duration("timeout", 30*time.Second, "timeout of the whole command")
	for _, name := range []string{"config", "driver", "dsn", "database", "users", "redis", "log-level", "timeout"} {
		// Lookup cannot fail for flags defined above.
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		newMigrateCmd(v),
		newSendCmd(v),
		newInboxCmd(v),
		newIgnoreCmd(v),
		newRecipientsCmd(v),
		newSummaryCmd(v),
	)
	return root
}

// initConfig layers .env, the environment and the config file under the flags.
func initConfig(v *viper.Viper) error {
	// A missing .env is fine.
	_ = godotenv.Load()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return nil
}

func newLogger(v *viper.Viper) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

// splitList splits a comma separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
