package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alwaysattend/internal/auth"
	"alwaysattend/internal/browser"
	"alwaysattend/internal/codes"
	"alwaysattend/internal/config"
	"alwaysattend/internal/logging"
	"alwaysattend/internal/portal"
	"alwaysattend/internal/runner"
	"alwaysattend/internal/stats"
)

var (
	cfg *config.Config
	log *zap.SugaredLogger

	flagConfig     string
	flagDryRun     bool
	flagWeek       string
	flagCourse     string
	flagBrowserBin string
	flagChannel    string
	flagHeaded     bool
	flagVerbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "alwaysattend",
	Short: "Submit attendance codes into the university portal",
	Long: `alwaysattend signs into the attendance portal, reads this week's
timetable slots, resolves attendance codes from the configured sources,
and submits each code into its matching slot.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return err
		}
		applyFlags(cmd)

		zapCfg := zap.NewDevelopmentConfig()
		if !flagVerbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
			zapCfg.DisableStacktrace = true
			zapCfg.DisableCaller = true
		}
		logger, err := zapCfg.Build()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		log = logger.Sugar()

		if flagVerbose {
			cfg.Logging.DebugMode = true
			cfg.Logging.Level = "debug"
		}
		return logging.Initialize(cfg.State.Dir, logging.Settings{
			DebugMode:  cfg.Logging.DebugMode,
			Level:      cfg.Logging.Level,
			Categories: cfg.Logging.Categories,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if log != nil {
			_ = log.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSubmit(cmd.Context())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "alwaysattend.yaml", "config file path")
	pf.StringVarP(&flagCourse, "course", "u", "", "course code (e.g. COS1234)")
	pf.StringVarP(&flagWeek, "week", "w", "", "week number, empty means latest")
	pf.StringVar(&flagBrowserBin, "browser-bin", "", "explicit browser binary")
	pf.StringVar(&flagChannel, "channel", "", "system browser channel: chrome|chrome-beta|msedge")
	pf.BoolVar(&flagHeaded, "headed", false, "run the browser with a visible window")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging to console and files")

	rootCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "resolve and match but submit nothing")

	rootCmd.AddCommand(newSubmitCmd(), newLoginCmd(), newStatsCmd())
}

// applyFlags overlays explicitly-set CLI flags onto the loaded config.
func applyFlags(cmd *cobra.Command) {
	if flagCourse != "" {
		cfg.Codes.Course = flagCourse
	}
	if flagWeek != "" {
		cfg.Codes.Week = flagWeek
	}
	if flagBrowserBin != "" {
		cfg.Browser.Bin = flagBrowserBin
	}
	if flagChannel != "" {
		cfg.Browser.Channel = flagChannel
	}
	if cmd.Flags().Changed("headed") || cmd.Root().PersistentFlags().Changed("headed") {
		cfg.Browser.Headed = flagHeaded
	}
}

// Execute runs the CLI and maps the outcome to a process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if log != nil {
			log.Errorf("%v", err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}
	return exitCode
}

// exitCode is set by commands that partially fail without returning an error.
var exitCode int

func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Resolve codes and submit them (the default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "resolve and match but submit nothing")
	return cmd
}

func runSubmit(ctx context.Context) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctrl := browser.New(cfg.Browser)
	defer ctrl.Close()

	driver := auth.NewRodDriver(cfg, ctrl)
	session := auth.NewManager(cfg, auth.NewStore(cfg.State.SessionPath()), driver)

	r := &runner.Runner{
		Session:   session,
		Slots:     &pageSlots{reader: portal.NewReader(cfg, ctrl), driver: driver},
		Codes:     codes.NewResolver(cfg.Codes),
		Submitter: &pageSubmitter{submitter: portal.NewSubmitter(cfg, ctrl), driver: driver},
		Stats:     stats.NewManager(cfg.State.StatsPath()),
		Course:    cfg.Codes.Course,
		DryRun:    flagDryRun,
	}

	// Manual MFA: a bare Enter in the terminal resumes the run once the
	// operator finishes the challenge in the headed browser.
	if cfg.Portal.TOTPSecret == "" && cfg.Portal.MFACode == "" {
		go watchForResume(session)
	}

	summary, err := r.Run(ctx)
	if err != nil {
		return err
	}
	printSummary(summary)
	exitCode = summary.ExitCode()
	return nil
}

func printSummary(sum runner.Summary) {
	for _, out := range sum.Outcomes {
		switch out.Status {
		case runner.StatusSubmitted:
			log.Infof("submitted  %-30s code=%s (%s)", out.Slot.Label, out.Code, out.Kind)
		case runner.StatusSkipped:
			log.Infof("skipped    %-30s %s", out.Slot.Label, out.Detail)
		case runner.StatusFailed:
			log.Warnf("failed     %-30s %v", out.Slot.Label, out.Err)
		}
	}
	mode := ""
	if sum.DryRun {
		mode = " (dry run)"
	}
	log.Infof("done%s: %d submitted, %d skipped, %d failed",
		mode, sum.Submitted, sum.Skipped, sum.Failed)
}

// watchForResume turns an Enter keypress into the MFA resume signal.
func watchForResume(session *auth.Manager) {
	buf := make([]byte, 1)
	for {
		if _, err := os.Stdin.Read(buf); err != nil {
			return
		}
		if buf[0] == '\n' {
			session.ResumeMFA()
		}
	}
}

// pageSlots adapts the portal reader onto the runner's SlotSource, binding it
// to the login driver's authenticated page.
type pageSlots struct {
	reader *portal.Reader
	driver *auth.RodDriver
}

func (p *pageSlots) Slots(ctx context.Context) ([]portal.Slot, error) {
	page := p.driver.Page()
	if page == nil {
		return nil, fmt.Errorf("no authenticated page; session not established")
	}
	return p.reader.Slots(ctx, page)
}

// pageSubmitter adapts the portal submitter the same way.
type pageSubmitter struct {
	submitter *portal.Submitter
	driver    *auth.RodDriver
}

func (p *pageSubmitter) Submit(ctx context.Context, slot portal.Slot, code string) error {
	page := p.driver.Page()
	if page == nil {
		return fmt.Errorf("no authenticated page; session not established")
	}
	return p.submitter.Submit(ctx, page, slot, code)
}
