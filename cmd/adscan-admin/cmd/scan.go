package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	flagPublishers []string
	flagPlatforms  []string
	flagProducts   []string
	flagSource     string
	flagBypassAI   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Manage scan jobs",
}

var scanInitiateCmd = &cobra.Command{
	Use:   "initiate",
	Short: "Initiate a scan across publisher channels",
	Example: `  adscan-admin scan initiate --publisher 4f1c... --publisher 9a2b...
  adscan-admin scan initiate --publisher 4f1c... --platform instagram --product 77de...`,
	RunE: func(_ *cobra.Command, _ []string) error {
		if len(flagPublishers) == 0 {
			return fmt.Errorf("at least one --publisher is required")
		}

		body := map[string]any{
			"publisher_ids": flagPublishers,
			"bypass_ai":     flagBypassAI,
		}
		if len(flagPlatforms) > 0 {
			body["platforms"] = flagPlatforms
		}
		if len(flagProducts) > 0 {
			body["product_ids"] = flagProducts
		}
		if flagSource != "" {
			body["source"] = flagSource
		}

		resp, _, err := mustClient().Do(http.MethodPost, "/api/v1/scans", body)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var scanGetCmd = &cobra.Command{
	Use:   "get <scan-job-id>",
	Short: "Show one scan job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		resp, _, err := mustClient().Do(http.MethodGet, "/api/v1/scans/"+args[0], nil)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var scanRunsCmd = &cobra.Command{
	Use:   "runs <scan-job-id>",
	Short: "List the runs of one scan job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		resp, _, err := mustClient().Do(http.MethodGet, "/api/v1/scans/"+args[0]+"/runs", nil)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

func init() {
	scanInitiateCmd.Flags().StringArrayVar(&flagPublishers, "publisher", nil, "Publisher ID (repeatable)")
	scanInitiateCmd.Flags().StringArrayVar(&flagPlatforms, "platform", nil, "Restrict to platform (repeatable)")
	scanInitiateCmd.Flags().StringArrayVar(&flagProducts, "product", nil, "Product ID (repeatable)")
	scanInitiateCmd.Flags().StringVar(&flagSource, "source", "admin_cli", "Scan source label")
	scanInitiateCmd.Flags().BoolVar(&flagBypassAI, "bypass-ai", false, "Store content without compliance analysis")

	scanCmd.AddCommand(scanInitiateCmd)
	scanCmd.AddCommand(scanGetCmd)
	scanCmd.AddCommand(scanRunsCmd)
}
