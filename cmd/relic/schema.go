package main

import (
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect artifact type schemas",
}

func init() {
	registerClientFlags(schemaCmd)
	schemaCmd.AddCommand(schemaListCmd)
	schemaCmd.AddCommand(schemaGetCmd)
}

var schemaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered artifact type schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newAPIClient(cmd)
		resp, err := c.doJSON("GET", "/schemas", nil)
		if err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var schemaGetCmd = &cobra.Command{
	Use:   "get TYPE",
	Short: "Show the schema for a single artifact type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newAPIClient(cmd)
		resp, err := c.doJSON("GET", "/schemas/"+args[0], nil)
		if err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}
