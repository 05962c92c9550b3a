package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/haul/internal/output"
	"github.com/ALT-F4-LLC/haul/internal/render"
)

type statsResult struct {
	Namespace string             `json:"namespace"`
	Total     int                `json:"total"`
	Kinds     []render.KindCount `json:"kinds"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count the objects of every kind in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		store := getStore(cmd)

		result := statsResult{Namespace: store.Schema().Namespace}
		for _, kind := range store.Schema().Kinds() {
			n, err := store.Count(cmd.Context(), kind)
			if err != nil {
				return cmdErr(fmt.Errorf("counting %s: %w", kind, err), output.ErrGeneral)
			}
			result.Total += n
			result.Kinds = append(result.Kinds, render.KindCount{Kind: kind, Count: n})
		}

		w.Result(result, "", func() string { return render.RenderKinds(result.Kinds) })
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
