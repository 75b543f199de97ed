package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/repoforge/bootstrap/internal/bootenv"
	"github.com/repoforge/bootstrap/internal/checkpoint"
	"github.com/repoforge/bootstrap/internal/errors"
	"github.com/repoforge/bootstrap/internal/event"
	"github.com/repoforge/bootstrap/internal/executor"
	"github.com/repoforge/bootstrap/internal/installer"
	"github.com/repoforge/bootstrap/internal/installer/installers"
	"github.com/repoforge/bootstrap/internal/logging"
	"github.com/repoforge/bootstrap/internal/plan"
	"github.com/repoforge/bootstrap/internal/progress"
	"github.com/repoforge/bootstrap/internal/verify"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Detect, install, and verify the toolchain",
	Args:  cobra.NoArgs,
	RunE:  runInstall,
}

func init() {
	installCmd.Flags().String("profile", "dev", "profile to install (dev, ci, full)")
	installCmd.Flags().Bool("github-env", false, "append toolchain environment to $GITHUB_ENV")
	installCmd.Flags().Bool("emit-env-commands", false, "emit shell export commands on stdout")
	rootCmd.AddCommand(installCmd)
}

// session bundles the pieces every toolchain subcommand needs.
type session struct {
	env      *bootenv.Context
	registry *installer.Registry
	bus      *event.Bus
	reporter *progress.Reporter
	renderer progress.Renderer
	exec     *executor.Executor
	logger   *logging.Logger
}

// newSession builds the run context, registry, event plumbing, and renderer.
func newSession() (*session, error) {
	env, err := buildEnv()
	if err != nil {
		return nil, err
	}

	registry := installers.NewRegistry(env.PackageManager)
	if err := env.Config.Validate(registry.Known); err != nil {
		return nil, err
	}

	logger := logging.NopLogger()
	if dir, err := os.UserCacheDir(); err == nil {
		level := logging.LevelInfo
		if env.Verbose {
			level = logging.LevelDebug
		}
		if l, err := logging.NewLogger(filepath.Join(dir, "bootstrap"), level); err == nil {
			logger = l
		}
		// A failed log setup never blocks a run.
	}

	bus := event.NewBus()
	reporter := progress.NewReporter(bus)
	mode := progress.DetectMode(env.CI, env.JSON)
	renderer := progress.NewRenderer(mode, os.Stdout, reporter)
	renderer.Attach(bus)

	return &session{
		env:      env,
		registry: registry,
		bus:      bus,
		reporter: reporter,
		renderer: renderer,
		exec:     executor.New(env, registry, bus, reporter, logger),
		logger:   logger,
	}, nil
}

// useDryRun narrows the session to a non-mutating run. The executor holds
// the env it was built with, so it is rebuilt against the narrowed copy.
func (s *session) useDryRun() {
	s.env = s.env.WithDryRun()
	s.exec = executor.New(s.env, s.registry, s.bus, s.reporter, s.logger)
}

func (s *session) close() {
	_ = s.renderer.Close()
	_ = s.logger.Close()
}

// resolveAndPlan resolves the profile, runs detection, and computes the plan.
func (s *session) resolveAndPlan(cmd *cobra.Command, profile string, verifyAll bool) (*plan.Plan, error) {
	ids, err := s.env.Config.Profile(profile)
	if err != nil {
		return nil, err
	}
	resolved, err := s.registry.Resolve(ids)
	if err != nil {
		return nil, err
	}

	detections, err := s.exec.RunDetection(cmd.Context(), resolved)
	if err != nil {
		return nil, err
	}

	p := plan.Compute(profile, resolved, s.env, detections, verifyAll)
	s.bus.Publish(event.NewPlanComputedEvent(profile, p.Hash(), p.TotalSteps(), p.PhaseNames(), s.env.DryRun))
	s.logger.Info("plan computed",
		"profile", profile, "hash", p.Hash(), "steps", p.TotalSteps(), "targets", p.InstallTargets())
	return p, nil
}

func runInstall(cmd *cobra.Command, _ []string) error {
	profile, _ := cmd.Flags().GetString("profile")
	githubEnv, _ := cmd.Flags().GetBool("github-env")
	emitEnv, _ := cmd.Flags().GetBool("emit-env-commands")

	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()

	start := time.Now()
	runErr := func() error {
		p, err := s.resolveAndPlan(cmd, profile, false)
		if err != nil {
			return err
		}

		if s.env.DryRun && !s.env.JSON {
			fmt.Fprint(cmd.OutOrStdout(), p.Render(true))
		}

		var store *checkpoint.Store
		resume := map[string]bool{}
		if s.env.Checkpoint || s.env.Resume {
			store, err = checkpoint.NewStore()
			if err != nil {
				return err
			}
		}
		if s.env.Resume {
			if cp, ok, err := store.Load(s.env.RepoRoot, p.Hash()); err == nil && ok {
				for _, id := range cp.Completed {
					resume[id] = true
				}
				s.logger.Info("resuming from checkpoint", "completed", len(cp.Completed))
			}
		}

		outcome, err := s.exec.Run(cmd.Context(), p, resume)
		if s.env.Checkpoint && store != nil && !s.env.DryRun {
			if err != nil {
				saveErr := store.Save(s.env.RepoRoot, &checkpoint.Checkpoint{
					Timestamp: time.Now().UTC(),
					PlanHash:  p.Hash(),
					Completed: outcome.Completed,
					Failed:    outcome.Failed,
				})
				if saveErr != nil {
					s.logger.Warn("checkpoint save failed", "error", saveErr.Error())
				}
			} else {
				_ = store.Clear(s.env.RepoRoot)
			}
		}
		if err != nil {
			return err
		}

		gate, err := verify.Run(cmd.Context(), s.env)
		if err != nil {
			return err
		}
		if gate.Findings {
			s.logger.Info("verification gate reported findings; toolchain is functional")
		}
		return nil
	}()

	code := errors.ExitCodeFor(runErr)
	s.bus.Publish(event.NewBootstrapCompletedEvent(runErr == nil, code.Int(), time.Since(start)))
	if runErr != nil {
		return runErr
	}

	if githubEnv {
		if err := appendGitHubEnv(s.env); err != nil {
			return err
		}
	}
	if emitEnv {
		emitEnvCommands(cmd, s.env)
	}
	return nil
}

// appendGitHubEnv writes the toolchain environment to the file named by
// $GITHUB_ENV, the GitHub Actions mechanism for exporting variables to
// later workflow steps.
func appendGitHubEnv(env *bootenv.Context) error {
	path := os.Getenv("GITHUB_ENV")
	if path == "" {
		return errors.Wrap(errors.ErrConfigInvalid, "--github-env requires $GITHUB_ENV to be set")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "opening $GITHUB_ENV")
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "VIRTUAL_ENV=%s\nPATH=%s%c%s\n",
		env.VenvPath, filepath.Join(env.VenvPath, "bin"), os.PathListSeparator, os.Getenv("PATH")); err != nil {
		return errors.Wrap(err, "writing $GITHUB_ENV")
	}
	return nil
}

// emitEnvCommands prints shell exports for eval "$(bootstrap install --emit-env-commands)".
func emitEnvCommands(cmd *cobra.Command, env *bootenv.Context) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "export VIRTUAL_ENV=%q\n", env.VenvPath)
	fmt.Fprintf(out, "export PATH=%q\n", filepath.Join(env.VenvPath, "bin")+string(os.PathListSeparator)+"$PATH")
}
