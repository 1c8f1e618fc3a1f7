package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/waste-tracker/internal/dashboard"
)

func newSummaryCmd() *cobra.Command {
	var f dashboard.Filter
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Prints the material distribution of the current export",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer appInstance.Close()
			view, err := appInstance.Summary(cmd.Context(), f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Dernière mise à jour: %s\n", view.LastUpdate)
			fmt.Fprintf(out, "Nombre de lignes: %d\n", view.Rows)
			fmt.Fprintf(out, "Heure moyenne de réalisation: %d\n", view.MeanHour)

			t := table.NewWriter()
			t.SetOutputMirror(out)
			t.AppendHeader(table.Row{"Matière", "Nombre"})
			for _, m := range view.Materials {
				t.AppendRow(table.Row{m.Material, m.Count})
			}
			t.AppendFooter(table.Row{"Total", view.Rows})
			t.SetStyle(table.StyleRounded)
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&f.ServiceType, "service-type", "", "filter on the service type")
	cmd.Flags().StringVar(&f.RealizationStatus, "realization-status", "", "filter on the realization status")
	cmd.Flags().StringVar(&f.BillingStatus, "billing-status", "", "filter on the billing status")
	return cmd
}
