package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var artifactCmd = &cobra.Command{
	Use:   "artifact",
	Short: "Create, inspect, and manage artifacts",
}

func init() {
	registerClientFlags(artifactCmd)
	artifactCmd.AddCommand(artifactCreateCmd)
	artifactCmd.AddCommand(artifactGetCmd)
	artifactCmd.AddCommand(artifactListCmd)
	artifactCmd.AddCommand(artifactDeleteCmd)
	artifactCmd.AddCommand(artifactPatchCmd)

	artifactCreateCmd.Flags().String("file", "", "Path to a JSON file with the artifact body (required)")
	artifactCreateCmd.MarkFlagRequired("file")

	artifactPatchCmd.Flags().String("file", "", "Path to a JSON Patch (RFC 6902) document (required)")
	artifactPatchCmd.MarkFlagRequired("file")
}

var artifactCreateCmd = &cobra.Command{
	Use:   "create TYPE",
	Short: "Create a new artifact of the given type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typeName := args[0]
		path, _ := cmd.Flags().GetString("file")
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		var payload map[string]interface{}
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		c := newAPIClient(cmd)
		resp, err := c.doJSON("POST", "/artifacts/"+typeName, payload)
		if err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var artifactGetCmd = &cobra.Command{
	Use:   "get TYPE ID",
	Short: "Fetch an artifact by type and id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newAPIClient(cmd)
		resp, err := c.doJSON("GET", fmt.Sprintf("/artifacts/%s/%s", args[0], args[1]), nil)
		if err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var artifactListCmd = &cobra.Command{
	Use:   "list TYPE",
	Short: "List artifacts of the given type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newAPIClient(cmd)
		resp, err := c.doJSON("GET", "/artifacts/"+args[0], nil)
		if err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var artifactDeleteCmd = &cobra.Command{
	Use:   "delete TYPE ID",
	Short: "Delete an artifact",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newAPIClient(cmd)
		resp, err := c.do("DELETE", fmt.Sprintf("/artifacts/%s/%s", args[0], args[1]), "", nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("delete failed: %s", resp.Status)
		}
		fmt.Println("deleted")
		return nil
	},
}

var artifactPatchCmd = &cobra.Command{
	Use:   "patch TYPE ID",
	Short: "Apply a JSON Patch document to an artifact",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		c := newAPIClient(cmd)
		resp, err := c.do("PATCH", fmt.Sprintf("/artifacts/%s/%s", args[0], args[1]), "application/json-patch+json", bytes.NewReader(data))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 400 {
			return fmt.Errorf("patch failed: %s: %s", resp.Status, string(raw))
		}
		var body map[string]interface{}
		if err := json.Unmarshal(raw, &body); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		printJSON(body)
		return nil
	},
}
