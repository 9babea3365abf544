package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/acksell/larder/planner"
	"github.com/acksell/larder/shopping"
)

func newShoppingListCmd(cc *cliContext) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "shopping-list",
		Short: "build the shopping list of a user's meal plan",
		Long: `
  Aggregates the ingredients of every recipe planned between --from and --to
  (inclusive, YYYY-MM-DD), scaled to the planned servings and grouped by
  store category.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cc.requireUser(); err != nil {
				return err
			}
			a, done, err := cc.open(cmd)
			if err != nil {
				return err
			}
			defer done()

			list, err := a.planner.GenerateShoppingList(cmd.Context(), cc.userID, from, to)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), cc.format, list, func(w io.Writer) error {
				return writeShoppingList(w, list)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date of the range")
	cmd.Flags().StringVar(&to, "to", "", "last date of the range")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// writeShoppingList prints the categories in store order, then the entries
// that were left out.
func writeShoppingList(w io.Writer, list planner.ShoppingList) error {
	var b strings.Builder
	if len(list.Categories) == 0 {
		b.WriteString("nothing planned\n")
	}
	for _, c := range shopping.Categories {
		items := list.Categories[c]
		if len(items) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(c + "\n")
		for _, it := range items {
			fmt.Fprintf(&b, "  [ ] %s %s %s", it.Quantity, it.Unit, it.Name)
			if len(it.Sources) > 0 {
				fmt.Fprintf(&b, "  (%s)", strings.Join(it.Sources, ", "))
			}
			b.WriteByte('\n')
		}
	}
	if len(list.Skipped) > 0 {
		b.WriteString("\nskipped\n")
		for _, s := range list.Skipped {
			fmt.Fprintf(&b, "  %s %s (entry %s): %s\n", s.Date, s.RecipeID, s.EntryID, s.Reason)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
