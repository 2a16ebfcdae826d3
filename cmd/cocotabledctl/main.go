/*
Copyright 2026 The Cocotabled Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// cocotabledctl is the operator-facing introspection CLI: it hits the debug
// HTTP surface cocotabled exposes and renders the result as a table.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func main() {
	var addr string
	root := &cobra.Command{
		Use:   "cocotabledctl",
		Short: "Inspect a running cocotabled daemon.",
	}
	root.PersistentFlags().StringVar(&addr, "debug-address", "127.0.0.1:9901", "cocotabled's debug HTTP address.")

	root.AddCommand(newPendingCommand(&addr))
	root.AddCommand(newHealthCommand(&addr))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newHealthCommand(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check whether cocotabled is responding.",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := fetch(*addr, "/healthz")
			if err != nil {
				return err
			}
			fmt.Println(string(body))
			return nil
		},
	}
}

func newPendingCommand(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Show the number of requests currently parked by the mode controller.",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := fetch(*addr, "/debug/pending")
			if err != nil {
				return err
			}
			var out struct {
				Pending int `json:"pending_requests"`
			}
			if err := json.Unmarshal(body, &out); err != nil {
				return fmt.Errorf("cocotabledctl: decode response: %w", err)
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Metric", "Value"})
			t.AppendRow(table.Row{"pending_requests", out.Pending})
			t.Render()
			return nil
		},
	}
}

func fetch(addr, path string) ([]byte, error) {
	client := http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s%s", addr, path))
	if err != nil {
		return nil, fmt.Errorf("cocotabledctl: request %s: %w", path, err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
