package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sakif/pickleit/internal/apiclient"
	"github.com/sakif/pickleit/internal/model"
	"github.com/sakif/pickleit/internal/repository"
	"github.com/sakif/pickleit/internal/statscache"
)

func newMethodsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "methods",
		Short: "Browse preservation methods",
	}
	cmd.AddCommand(newMethodsListCmd(a), newMethodsShowCmd(a))
	return cmd
}

func newMethodsListCmd(a *app) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List methods, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			views, err := a.client.ListMethodViews(ctx, repository.ListOptions{Category: category})
			if err != nil {
				return err
			}
			if category == "" {
				a.stats.SetInt(ctx, statscache.KeyTotalMethods, len(views))
			}

			// saved marks are best effort; anonymous users simply see none
			saved := map[int64]bool{}
			if a.client.Token() != "" {
				if ids, err := a.client.SavedMethodIDs(ctx, ""); err == nil {
					for _, id := range ids {
						saved[id] = true
					}
				}
			}

			out := cmd.OutOrStdout()
			if len(views) == 0 {
				fmt.Fprintln(out, "No methods found")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tDURATION\tSAVED")
			for _, v := range views {
				mark := ""
				if saved[v.ID] {
					mark = "*"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", v.ID, v.Title, v.Category, v.Duration, mark)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Only methods in this category")
	return cmd
}

func newMethodsShowCmd(a *app) *cobra.Command {
	var yield float64
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a method with steps and ingredients",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMethodID(args[0])
			if err != nil {
				return err
			}
			v, err := a.client.MethodView(cmd.Context(), id)
			if err != nil {
				return err
			}
			printMethod(cmd.OutOrStdout(), v, yield)
			return nil
		},
	}
	cmd.Flags().Float64Var(&yield, "yield", 0, "Scale ingredients to this yield")
	return cmd
}

func printMethod(w io.Writer, v *apiclient.MethodView, targetYield float64) {
	fmt.Fprintf(w, "%s\n", v.Title)
	fmt.Fprintf(w, "Category: %s   Duration: %s\n\n", v.Category, v.Duration)
	fmt.Fprintf(w, "%s\n", v.Description)

	if ings := v.Ingredients; len(ings) > 0 {
		yield := v.BaseYield
		if targetYield > 0 {
			ings = model.ScaleIngredients(ings, v.BaseYield, targetYield)
			yield = targetYield
		}
		fmt.Fprintln(w, "\nIngredients")
		if yield > 0 {
			fmt.Fprintf(w, "  (makes %s %s)\n", strconv.FormatFloat(yield, 'f', -1, 64), v.YieldUnit)
		}
		for _, ing := range ings {
			fmt.Fprintf(w, "  - %s %s %s\n", formatQuantity(ing.Quantity), ing.Unit, ing.Name)
		}
	}

	if steps := v.SortedSteps(); len(steps) > 0 {
		fmt.Fprintln(w, "\nSteps")
		for _, s := range steps {
			fmt.Fprintf(w, "  %d. %s\n", s.Order, s.Title)
			if s.Description != "" {
				fmt.Fprintf(w, "     %s\n", s.Description)
			}
		}
	}

	fmt.Fprintln(w, "\nImages")
	fmt.Fprintf(w, "  thumbnail: %s\n", v.ThumbnailURL)
	if v.LQIPURL != "" {
		fmt.Fprintf(w, "  preview:   %s\n", v.LQIPURL)
	}
	fmt.Fprintf(w, "  full size: %s\n", v.FullImageURL)
}

// formatQuantity always shows two decimals: 4 prints as "4.00".
func formatQuantity(q float64) string {
	return strconv.FormatFloat(q, 'f', 2, 64)
}
