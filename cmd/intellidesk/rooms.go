package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/intellidesk/internal/config"
)

func newRoomsCommand(_ *rootOptions) *cobra.Command {
	var catalogPath string
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "Print the room and equipment catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := config.LoadCatalog(catalogPath)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ROOM\tCAPACITY\tBRIDGE")
			for _, r := range catalog.RoomList() {
				bridge := r.BridgeAccount
				if bridge == "" {
					bridge = "-"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\n", r.Name, r.Capacity, bridge)
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "EQUIPMENT\tNAME\t")
			for _, item := range catalog.EquipmentList() {
				fmt.Fprintf(w, "%s\t%s\t\n", item.ID, item.Name)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", envOr("CATALOG_PATH", ""), "catalog YAML file; empty uses the built-in catalog")
	return cmd
}
