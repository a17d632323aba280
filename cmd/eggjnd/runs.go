package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"eggjnd/internal/storage"
	"eggjnd/pkg/domain"
)

func newRunsCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List stored run records",
		Long:  "runs lists the per-group run records kept in the run store, optionally only those of one run.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			store, err := storage.OpenRunStore(cmd.Context(), a.cfg.Storage)
			if err != nil {
				return err
			}
			defer store.Close()
			recs, err := store.List(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				if recs == nil {
					recs = []domain.RunRecord{}
				}
				return enc.Encode(recs)
			}
			for _, r := range recs {
				group := r.Group
				if group == "" {
					group = "all"
				}
				line := fmt.Sprintf("%s  %s  %-12s %-9s samples=%d created=%s",
					r.RunID, r.ID, group, r.Status, r.Samples, r.CreatedAt.Format(time.RFC3339))
				if r.Error != "" {
					line += " error=" + r.Error
				}
				fmt.Fprintln(a.out, line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	return cmd
}
