package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ome/internal/inventory"
	"ome/internal/rules"
	"ome/internal/service"
	"ome/internal/taxonomy"
)

var (
	matchReqs []string
	matchCaps []string
	asTree    bool
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match requirement tokens against capability tokens",
	Example: `  ome match --req "CNC milling" --cap "cnc milling" --cap "3D printing"
  ome match --req milling --req "PCB assembly" --cap "cnc machining" --tree`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := baseConfig()
		if err != nil {
			return err
		}

		tax, err := taxonomy.New(taxonomyPath)
		if err != nil {
			return fmt.Errorf("load taxonomy: %w", err)
		}
		store, err := rules.NewStore(rulesDir, tax)
		if err != nil {
			return fmt.Errorf("load rules: %w", err)
		}

		svc, err := service.New(service.Options{
			Config:   cfg,
			Taxonomy: tax,
			Rules:    store,
		})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		req := &service.Request{
			Requirements: matchReqs,
			Capabilities: matchCaps,
			Domain:       domain,
			QualityLevel: quality,
			Strict:       strict,
		}

		if asTree {
			tree, report, err := svc.GenerateSupplyTree(ctx, &service.Request{
				Manifest:     manifestFromTokens(matchReqs),
				Capabilities: matchCaps,
				Domain:       domain,
				QualityLevel: quality,
				Strict:       strict,
			})
			if err != nil {
				return err
			}
			fmt.Println(renderReport(report))
			fmt.Println(renderTree(tree))
			return nil
		}

		report, err := svc.MatchRequirements(ctx, req)
		if err != nil && report == nil {
			return err
		}
		fmt.Println(renderReport(report))
		if report.Status == service.StatusFailed {
			return fmt.Errorf("matching failed")
		}
		return nil
	},
}

func init() {
	matchCmd.Flags().StringArrayVar(&matchReqs, "req", nil, "requirement token (repeatable)")
	matchCmd.Flags().StringArrayVar(&matchCaps, "cap", nil, "capability token (repeatable)")
	matchCmd.Flags().BoolVar(&asTree, "tree", false, "build and render a supply tree")
	_ = matchCmd.MarkFlagRequired("req")
	_ = matchCmd.MarkFlagRequired("cap")
}

func manifestFromTokens(tokens []string) *inventory.Manifest {
	m := &inventory.Manifest{ID: "cli", Name: "cli manifest"}
	for _, t := range tokens {
		if strings.TrimSpace(t) != "" {
			m.Requirements = append(m.Requirements, inventory.Requirement{Token: t})
		}
	}
	return m
}
