package main

import (
	"github.com/spf13/cobra"

	"alwaysattend/internal/auth"
	"alwaysattend/internal/browser"
)

func newLoginCmd() *cobra.Command {
	var checkOnly bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Establish (or verify) the portal session without submitting",
		Long: `login proves the stored session against the portal, running the full
interactive login and MFA flow if the session is stale. With --check-only it
reports the stored session's state without attempting a login.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx := cmd.Context()

			store := auth.NewStore(cfg.State.SessionPath())

			if checkOnly {
				tok, err := store.Load(cfg.Portal.Identity())
				if err != nil {
					log.Infof("no usable stored session for %s", cfg.Portal.Identity())
					exitCode = 1
					return nil
				}
				log.Infof("stored session for %s captured %s", tok.Identity,
					tok.CapturedAt.Format("2006-01-02 15:04:05"))
				return nil
			}

			ctrl := browser.New(cfg.Browser)
			defer ctrl.Close()

			driver := auth.NewRodDriver(cfg, ctrl)
			session := auth.NewManager(cfg, store, driver)

			if cfg.Portal.TOTPSecret == "" && cfg.Portal.MFACode == "" {
				log.Info("no TOTP seed configured; finish any MFA prompt in the browser, then press Enter here")
				go watchForResume(session)
			}

			tok, err := session.EnsureSession(ctx)
			if err != nil {
				return err
			}
			log.Infof("session established for %s and saved to %s",
				tok.Identity, cfg.State.SessionPath())
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkOnly, "check-only", false, "only inspect the stored session")
	return cmd
}
