package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"household-missions/internal/progression"
)

func suggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest",
		Short: "Offer today's challenges to every user once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			return a.offerSuggestions(cmd.Context())
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Pay out EXP for completed occurrences that have no grant yet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			n, err := a.trigger.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("replayed %d completion(s)\n", n)
			return nil
		},
	}
}

func levelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "levels",
		Short: "Print the EXP required for each level",
		RunE: func(cmd *cobra.Command, _ []string) error {
			top, _ := cmd.Flags().GetInt("max")
			if top > progression.MaxLevel {
				return fmt.Errorf("--max must be at most %d", progression.MaxLevel)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "LEVEL\tTOTAL EXP\tSTEP")
			floor, prev := 0, 0
			for l := 1; l <= top; l++ {
				p := progression.ProgressOf(progression.State{TotalExp: floor, Level: l})
				fmt.Fprintf(w, "%d\t%d\t%d\n", l, p.LevelFloor, p.LevelFloor-prev)
				prev, floor = p.LevelFloor, p.NextLevelExp
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntP("max", "n", 20, "highest level to print")
	return cmd
}
