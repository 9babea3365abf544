package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/acksell/larder"
	"github.com/acksell/larder/dynamodb/ddbsdk"
)

// importFile is the layout of a YAML import file. Missing ids are
// generated and missing owners default to --user.
type importFile struct {
	Users       []*larder.User          `yaml:"users"`
	Recipes     []*larder.Recipe        `yaml:"recipes"`
	MealPlans   []*larder.MealPlanEntry `yaml:"mealPlans"`
	Collections []*larder.Collection    `yaml:"collections"`
}

type importReport struct {
	Kind        string   `json:"kind" yaml:"kind"`
	Imported    int      `json:"imported" yaml:"imported"`
	Invalid     int      `json:"invalid" yaml:"invalid"`
	Unprocessed int      `json:"unprocessed" yaml:"unprocessed"`
	Failed      int      `json:"failed" yaml:"failed"`
	Errors      []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

func (r importReport) incomplete() int {
	return r.Invalid + r.Unprocessed + r.Failed
}

func newImportCmd(cc *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "load users, recipes, meal plans and collections from YAML files",
		Long: `
  Writes every valid record of the given files with batch writes. Invalid
  records are skipped and reported; the command fails if any record was not
  written.
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var all importFile
			for _, path := range args {
				f, err := readImportFile(path)
				if err != nil {
					return err
				}
				all.Users = append(all.Users, f.Users...)
				all.Recipes = append(all.Recipes, f.Recipes...)
				all.MealPlans = append(all.MealPlans, f.MealPlans...)
				all.Collections = append(all.Collections, f.Collections...)
			}

			a, done, err := cc.open(cmd)
			if err != nil {
				return err
			}
			defer done()

			reports, err := runImport(cmd.Context(), a, cc.userID, all)
			if err != nil {
				return err
			}
			if err := render(cmd.OutOrStdout(), cc.format, reports, func(w io.Writer) error {
				return writeImportReports(w, reports)
			}); err != nil {
				return err
			}
			missing := 0
			for _, r := range reports {
				missing += r.incomplete()
			}
			if missing > 0 {
				return fmt.Errorf("%d records were not imported", missing)
			}
			return nil
		},
	}
}

func readImportFile(path string) (importFile, error) {
	fh, err := os.Open(path)
	if err != nil {
		return importFile{}, err
	}
	defer fh.Close()

	var f importFile
	dec := yaml.NewDecoder(fh)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return importFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

// runImport writes users first and collections last, each kind with one
// batch write.
func runImport(ctx context.Context, a *app, userID string, f importFile) ([]importReport, error) {
	defaultID := func(id *string) {
		if *id == "" {
			*id = larder.NewID()
		}
	}
	defaultOwner := func(owner *string) {
		if *owner == "" {
			*owner = userID
		}
	}
	repos := a.repos

	var reports []importReport
	users, err := importEntities(ctx, a.log, "users", f.Users,
		func(u *larder.User) { defaultID(&u.ID) },
		repos.Users.BatchPut)
	if err != nil {
		return nil, err
	}
	reports = append(reports, users)

	recipes, err := importEntities(ctx, a.log, "recipes", f.Recipes,
		func(r *larder.Recipe) {
			defaultID(&r.ID)
			defaultOwner(&r.AuthorID)
		},
		repos.Recipes.BatchPut)
	if err != nil {
		return nil, err
	}
	reports = append(reports, recipes)

	plans, err := importEntities(ctx, a.log, "mealPlans", f.MealPlans,
		func(e *larder.MealPlanEntry) {
			defaultID(&e.ID)
			defaultOwner(&e.UserID)
		},
		repos.MealPlans.BatchPut)
	if err != nil {
		return nil, err
	}
	reports = append(reports, plans)

	collections, err := importEntities(ctx, a.log, "collections", f.Collections,
		func(c *larder.Collection) {
			defaultID(&c.ID)
			defaultOwner(&c.OwnerID)
		},
		repos.Collections.BatchPut)
	if err != nil {
		return nil, err
	}
	return append(reports, collections), nil
}

func importEntities[P larder.Entity](
	ctx context.Context,
	log *zap.Logger,
	kind string,
	entities []P,
	prepare func(P),
	put func(context.Context, []P) (ddbsdk.BatchWriteResult, error),
) (importReport, error) {
	report := importReport{Kind: kind}
	valid := make([]P, 0, len(entities))
	var null P
	for i, e := range entities {
		if any(e) == any(null) {
			report.Invalid++
			report.Errors = append(report.Errors, fmt.Sprintf("%s[%d]: empty record", kind, i))
			continue
		}
		prepare(e)
		if err := larder.Validate(e); err != nil {
			report.Invalid++
			report.Errors = append(report.Errors, fmt.Sprintf("%s[%d] %s: %v", kind, i, e.GetID(), err))
			log.Warn("skipping invalid record",
				zap.String("kind", kind), zap.Int("index", i), zap.String("id", e.GetID()), zap.Error(err))
			continue
		}
		valid = append(valid, e)
	}
	if len(valid) == 0 {
		return report, nil
	}

	res, err := put(ctx, valid)
	if err != nil {
		return report, fmt.Errorf("import %s: %w", kind, err)
	}
	report.Imported = len(res.Successful)
	report.Unprocessed = len(res.Unprocessed)
	report.Failed = len(res.Failed)
	for _, f := range res.Failed {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", kind, f.Err))
	}
	return report, nil
}

func writeImportReports(w io.Writer, reports []importReport) error {
	for _, r := range reports {
		if r.Imported+r.incomplete() == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "%-12s %d imported, %d invalid, %d unprocessed, %d failed\n",
			r.Kind+":", r.Imported, r.Invalid, r.Unprocessed, r.Failed); err != nil {
			return err
		}
		for _, e := range r.Errors {
			if _, err := fmt.Fprintf(w, "  %s\n", e); err != nil {
				return err
			}
		}
	}
	return nil
}
