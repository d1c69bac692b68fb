/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/quizbox/quiz"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind          string
	codeLength    int
	corsOrigins   []string
	deadlineGrace time.Duration
	listSessions  bool
	maxNameLength int
	metrics       bool
	natsSubject   string
	natsURL       string
	port          int
	prefix        string
	profile       bool
	questions     string
	reapInterval  time.Duration
	revealDelay   time.Duration
	tlsCert       string
	tlsKey        string
	verbose       bool
	version       bool

	defaultQuestions []quiz.Question
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.codeLength < 4 || c.codeLength > 12 {
		return fmt.Errorf("invalid code length (must be between 4-12 inclusive): %d", c.codeLength)
	}
	if c.maxNameLength < 1 {
		return fmt.Errorf("invalid max name length (must be positive): %d", c.maxNameLength)
	}
	if c.reapInterval <= 0 {
		return fmt.Errorf("invalid reap interval (must be positive): %s", c.reapInterval)
	}
	if c.revealDelay <= 0 {
		return fmt.Errorf("invalid reveal delay (must be positive): %s", c.revealDelay)
	}
	if c.deadlineGrace < 0 {
		return fmt.Errorf("invalid deadline grace (must not be negative): %s", c.deadlineGrace)
	}
	if c.natsURL != "" && c.natsSubject == "" {
		return errors.New("--nats-subject must not be empty when --nats-url is set")
	}

	if c.questions != "" {
		qs, err := quiz.LoadQuestionsFile(c.questions)
		if err != nil {
			return fmt.Errorf("load questions from %s: %w", c.questions, err)
		}
		c.defaultQuestions = qs
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("QUIZBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "quizbox",
		Short:         "Host live multiple-choice quizzes for a room full of players.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cfg)

			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: QUIZBOX_BIND)")
	fs.IntVar(&cfg.codeLength, "code-length", quiz.DefaultCodeLength, "length of generated session codes (env: QUIZBOX_CODE_LENGTH)")
	fs.StringSliceVar(&cfg.corsOrigins, "cors-origin", []string{"*"}, "origins allowed to make cross-origin requests (env: QUIZBOX_CORS_ORIGIN)")
	fs.DurationVar(&cfg.deadlineGrace, "deadline-grace", 500*time.Millisecond, "extra wait after a question's deadline before closing the round (env: QUIZBOX_DEADLINE_GRACE)")
	fs.BoolVar(&cfg.listSessions, "list-sessions", false, "expose a JSON listing of live sessions at /sessions (env: QUIZBOX_LIST_SESSIONS)")
	fs.IntVar(&cfg.maxNameLength, "max-name-length", quiz.DefaultMaxNameLength, "maximum player display name length (env: QUIZBOX_MAX_NAME_LENGTH)")
	fs.BoolVar(&cfg.metrics, "metrics", false, "expose prometheus metrics at /metrics (env: QUIZBOX_METRICS)")
	fs.StringVar(&cfg.natsSubject, "nats-subject", "quizbox.events", "subject prefix for mirrored session events (env: QUIZBOX_NATS_SUBJECT)")
	fs.StringVar(&cfg.natsURL, "nats-url", "", "mirror session events to this NATS server (env: QUIZBOX_NATS_URL)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: QUIZBOX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: QUIZBOX_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: QUIZBOX_PROFILE)")
	fs.StringVarP(&cfg.questions, "questions", "q", "", "yaml or json question set used when a host supplies none (env: QUIZBOX_QUESTIONS)")
	fs.DurationVar(&cfg.reapInterval, "reap-interval", quiz.DefaultReapInterval, "how often abandoned lobbies are removed (env: QUIZBOX_REAP_INTERVAL)")
	fs.DurationVar(&cfg.revealDelay, "reveal-delay", quiz.DefaultRevealDelay, "pause between revealing an answer and the next question (env: QUIZBOX_REVEAL_DELAY)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: QUIZBOX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: QUIZBOX_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: QUIZBOX_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: QUIZBOX_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("quizbox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
