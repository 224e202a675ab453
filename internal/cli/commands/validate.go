package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/treeline-data/treeline/internal/model"
	"github.com/treeline-data/treeline/internal/resolve"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the project without generating SQL",
		Long: `Run semantic validation and resolution on the project snapshot and
report every fatal error and warning, without writing any output files.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd)
		},
	}
}

func runValidate(cmd *cobra.Command) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}
	snap, err := loadSnapshot(cfg)
	if err != nil {
		return err
	}

	vm, errs := model.Validate(snap)
	if len(errs) == 0 {
		if _, ferrs := resolve.ResolveFilters(vm); len(ferrs) > 0 {
			errs = ferrs
		} else if _, oerrs := resolve.BuildEvaluationOrder(vm); len(oerrs) > 0 {
			errs = oerrs
		}
	}
	if len(errs) > 0 {
		printModelErrors(errs)
		return fmt.Errorf("%s is invalid: %d errors", snap.Project, len(errs))
	}

	mappings := resolve.AggregateMappings(vm)
	printDiagnostics(mappings.Diagnostics)

	fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d nodes, %d filter groups, %d warnings\n",
		snap.Project, len(vm.Nodes), len(vm.Groups), len(mappings.Diagnostics))
	return nil
}
