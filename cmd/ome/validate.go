package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ome/internal/rules"
	"ome/internal/taxonomy"
)

var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: "Process taxonomy tools",
}

var taxonomyValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the taxonomy file",
	RunE: func(cmd *cobra.Command, args []string) error {
		tax, err := taxonomy.New(taxonomyPath)
		if err != nil {
			return fmt.Errorf("taxonomy invalid: %w", err)
		}
		fmt.Println(okStyle.Render(fmt.Sprintf("✓ %s: %d process definitions", taxonomyPath, tax.Len())))
		return nil
	},
}

var taxonomyNormalizeCmd = &cobra.Command{
	Use:   "normalize <token>...",
	Short: "Resolve tokens to canonical process ids",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tax, err := taxonomy.New(taxonomyPath)
		if err != nil {
			return err
		}
		for _, arg := range args {
			id := tax.Normalize(arg)
			if id == "" {
				fmt.Printf("%-30s -> %s\n", arg, dimStyle.Render("(no canonical id)"))
				continue
			}
			fmt.Printf("%-30s -> %s (%s)\n", arg, id, tax.DisplayName(id))
		}
		return nil
	},
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Capability rule tools",
}

var rulesLintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Load and validate every rule file in the rules directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		tax, err := taxonomy.New(taxonomyPath)
		if err != nil {
			return fmt.Errorf("taxonomy invalid: %w", err)
		}
		store, err := rules.NewStore(rulesDir, tax)
		if err != nil {
			return fmt.Errorf("rules invalid: %w", err)
		}
		for _, d := range store.Domains() {
			set := store.Set(d)
			fmt.Println(okStyle.Render(fmt.Sprintf("✓ %s: %d rules (version %s)", d, len(set.Rules), set.Version)))
		}
		return nil
	},
}

func init() {
	taxonomyCmd.AddCommand(taxonomyValidateCmd)
	taxonomyCmd.AddCommand(taxonomyNormalizeCmd)
	rulesCmd.AddCommand(rulesLintCmd)
}
