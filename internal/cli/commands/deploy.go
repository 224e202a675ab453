package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/treeline-data/treeline/internal/compile"
	"github.com/treeline-data/treeline/internal/deploy"
	"github.com/treeline-data/treeline/internal/state"
)

// NewDeployCommand creates the deploy command.
func NewDeployCommand() *cobra.Command {
	var (
		targetName string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Compile and apply artifacts to the configured target",
		Long: `Compile the project snapshot and execute the resulting scripts against
the configured database target. A deployment whose model fingerprint matches
the last applied one is skipped unless --force is given. Every attempt is
recorded in deployment history.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeploy(cmd, targetName, force)
		},
	}

	cmd.Flags().StringVar(&targetName, "target", "", "Deployment target type (default from config)")
	cmd.Flags().BoolVar(&force, "force", false, "Apply even when the model is unchanged")
	return cmd
}

func runDeploy(cmd *cobra.Command, targetName string, force bool) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}
	snap, err := loadSnapshot(cfg)
	if err != nil {
		return err
	}
	kinds, err := artifactKinds(cfg.Artifacts)
	if err != nil {
		return err
	}

	if targetName == "" && cfg.Target != nil {
		targetName = cfg.Target.Type
	}
	if targetName == "" {
		return fmt.Errorf("no deployment target configured (set target.type in treeline.yaml or pass --target)")
	}

	target, err := deploy.NewTarget(targetName)
	if err != nil {
		return err
	}

	targetCfg := deploy.Config{}
	if cfg.Target != nil {
		targetCfg = deploy.Config{
			Host:     cfg.Target.Host,
			Port:     cfg.Target.Port,
			Database: cfg.Target.Database,
			Schema:   cfg.Target.Schema,
			Username: cfg.Target.User,
			Password: cfg.Target.Password,
			Options:  cfg.Target.Options,
		}
	}

	ctx := context.Background()
	if err := target.Connect(ctx, targetCfg); err != nil {
		return err
	}
	defer func() { _ = target.Close() }()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	logger := getLogger()
	runner := deploy.NewRunner(compile.New(logger), store, target, logger)
	outcome, err := runner.Deploy(ctx, snap, deploy.Options{
		Options: compile.Options{
			Dialect:    cfg.Dialect,
			Artifacts:  kinds,
			RefreshLag: cfg.RefreshLag,
		},
		Force: force,
	})
	if err != nil {
		return err
	}
	printDiagnostics(outcome.Diagnostics)

	out := cmd.OutOrStdout()
	switch outcome.Status {
	case state.StatusSkipped:
		fmt.Fprintf(out, "%s unchanged (fingerprint %s), nothing to deploy\n",
			snap.Project, shortFingerprint(outcome.Fingerprint))
	default:
		fmt.Fprintf(out, "Deployed %d artifacts for %s to %s\n",
			outcome.Applied, snap.Project, targetName)
	}
	return nil
}
