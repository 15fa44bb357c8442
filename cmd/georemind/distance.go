package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"georemind/internal/domain/geo"
)

func newDistanceCommand() *cobra.Command {
	var radiusKm float64
	cmd := &cobra.Command{
		Use:   "distance LAT1 LON1 LAT2 LON2",
		Short: "Print the great-circle distance between two coordinates",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := make([]float64, len(args))
			for i, arg := range args {
				v, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return fmt.Errorf("argument %d: %q is not a number", i+1, arg)
				}
				values[i] = v
			}
			from := geo.Coordinate{Latitude: values[0], Longitude: values[1]}
			to := geo.Coordinate{Latitude: values[2], Longitude: values[3]}
			for _, c := range []geo.Coordinate{from, to} {
				if !c.Valid() {
					return fmt.Errorf("coordinate %s out of range", c)
				}
			}

			km := geo.DistanceKm(from, to)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%.6f km (%.1f m)\n", km, km*1000)
			if cmd.Flags().Changed("radius-km") {
				if km <= radiusKm {
					fmt.Fprintln(out, green("inside"), gray(fmt.Sprintf("radius %.3f km", radiusKm)))
				} else {
					fmt.Fprintln(out, yellow("outside"), gray(fmt.Sprintf("radius %.3f km", radiusKm)))
				}
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&radiusKm, "radius-km", 0, "report whether the points are within this radius")
	return cmd
}
