package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/stockpulse/stockpulse/internal/config"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print engine status from a running instance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			addr := cfg.Ops.Listen
			if strings.HasPrefix(addr, ":") {
				addr = "localhost" + addr
			}

			resp, err := resty.New().R().
				SetContext(cmd.Context()).
				Get("http://" + addr + "/status")
			if err != nil {
				return fmt.Errorf("query ops server: %w", err)
			}
			if resp.IsError() {
				return fmt.Errorf("query ops server: %s", resp.Status())
			}

			var pretty json.RawMessage = resp.Body()
			out, err := json.MarshalIndent(pretty, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
