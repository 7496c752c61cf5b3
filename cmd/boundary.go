package main

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pickup-cli/internal/boundary"
	"github.com/sells-group/pickup-cli/internal/export"
)

var boundaryCode string

var boundaryCmd = &cobra.Command{
	Use:   "boundary <region>",
	Short: "Resolve one region and print its bounds as GeoJSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(cmd.Name()); err != nil {
			return err
		}
		region := strings.Join(args, " ")

		res, err := initResolver(cfg).ResolveDetailed(cmd.Context(), region, boundaryCode)
		if err != nil {
			return eris.Wrap(err, "boundary")
		}

		zap.L().Info("boundary resolved",
			zap.String("region", region),
			zap.String("strategy", res.Strategy),
			zap.Bool("degraded", res.Degraded),
			zap.String("kind", string(res.Bounds.Kind)),
		)
		return writeResolution(os.Stdout, res)
	},
}

// writeResolution prints the boundary feature with the resolution details
// added to its properties.
func writeResolution(out io.Writer, res *boundary.Resolution) error {
	f := export.BoundaryFeature(res.Bounds)
	f.Properties["strategy"] = res.Strategy
	f.Properties["degraded"] = res.Degraded
	if res.Reason != "" {
		f.Properties["reason"] = string(res.Reason)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(f)
}

func init() {
	boundaryCmd.Flags().StringVar(&boundaryCode, "code", "", "official municipality code (e.g. GM0344) to disambiguate the name")
	rootCmd.AddCommand(boundaryCmd)
}
