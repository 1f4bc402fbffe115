package cli

import (
	"github.com/gclaussn/go-extask/engine"
	"github.com/spf13/cobra"
)

func flagQueryOptions(c *cobra.Command, options *engine.QueryOptions) {
	c.Flags().IntVar(&options.Limit, "limit", 100, "Maximum number of results")
	c.Flags().IntVar(&options.Offset, "offset", 0, "Number of results to skip")
}
