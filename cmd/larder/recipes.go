package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/acksell/larder"
	"github.com/acksell/larder/repository"
)

type recipesFlags struct {
	id       string
	author   string
	category string
	search   string
	limit    int
	cursor   string
}

type recipeListing struct {
	Recipes    []*larder.Recipe `json:"recipes" yaml:"recipes"`
	NextCursor string           `json:"nextCursor,omitempty" yaml:"nextCursor,omitempty"`
}

func newRecipesCmd(cc *cliContext) *cobra.Command {
	var f recipesFlags
	cmd := &cobra.Command{
		Use:   "recipes",
		Short: "list, search or show recipes",
		Long: `
  Without flags, lists public recipes newest first. --author lists the
  recipes of one user, --category the public recipes of a category and
  --search matches public recipe titles. --id prints a single recipe.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, done, err := cc.open(cmd)
			if err != nil {
				return err
			}
			defer done()

			listing, err := listRecipes(cmd, a, f)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), cc.format, listing, func(w io.Writer) error {
				return writeRecipes(w, listing)
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.id, "id", "", "print the recipe with this id")
	fl.StringVar(&f.author, "author", "", "list the recipes of this author")
	fl.StringVar(&f.category, "category", "", "list public recipes of this category")
	fl.StringVar(&f.search, "search", "", "search public recipe titles")
	fl.IntVar(&f.limit, "limit", repository.DefaultPageSize, "page size")
	fl.StringVar(&f.cursor, "cursor", "", "cursor of the page to list, printed after the previous page")
	cmd.MarkFlagsMutuallyExclusive("id", "author", "category", "search")
	return cmd
}

func listRecipes(cmd *cobra.Command, a *app, f recipesFlags) (recipeListing, error) {
	ctx := cmd.Context()
	page := repository.Page{Limit: f.limit, Cursor: f.cursor}
	recipes := a.repos.Recipes

	var (
		res repository.PageResult[*larder.Recipe]
		err error
	)
	switch {
	case f.id != "":
		r, err := recipes.GetByID(ctx, f.id)
		if err != nil {
			return recipeListing{}, err
		}
		return recipeListing{Recipes: []*larder.Recipe{r}}, nil
	case f.search != "":
		found, err := recipes.SearchPublic(ctx, f.search, f.limit)
		if err != nil {
			return recipeListing{}, err
		}
		return recipeListing{Recipes: found}, nil
	case f.author != "":
		res, err = recipes.ListByAuthor(ctx, f.author, page)
	case f.category != "":
		res, err = recipes.ListByCategory(ctx, f.category, page)
	default:
		res, err = recipes.ListPublic(ctx, page)
	}
	if err != nil {
		return recipeListing{}, err
	}
	return recipeListing{Recipes: res.Items, NextCursor: res.NextCursor}, nil
}

func writeRecipes(w io.Writer, l recipeListing) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tSERVINGS\tPUBLIC")
	for _, r := range l.Recipes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.Title, r.Category, r.Servings, strconv.FormatBool(r.IsPublic))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if l.NextCursor != "" {
		_, err := fmt.Fprintf(w, "\nnext page: --cursor %s\n", l.NextCursor)
		return err
	}
	return nil
}
