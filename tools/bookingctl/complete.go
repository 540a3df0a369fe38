package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func completeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Complete confirmed appointments dated before --as-of",
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, _ := cmd.Flags().GetString("as-of")
			body := map[string]string{}
			if asOf != "" {
				body["asOf"] = asOf
			}
			payload, err := json.Marshal(body)
			if err != nil {
				return err
			}
			tok, err := mintToken(v, "bookingctl", auth.RoleSystem)
			if err != nil {
				return err
			}

			url := strings.TrimRight(v.GetString("BOOKING_URL"), "/") + "/api/v1/internal/appointments/complete"
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(payload))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+tok)

			client := &http.Client{Timeout: 30 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			out, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("booking-service returned %s: %s", resp.Status, strings.TrimSpace(string(out)))
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(out)))
			return nil
		},
	}
	cmd.Flags().String("as-of", "", "cutoff date YYYY-MM-DD (default: today in the service timezone)")
	return cmd
}
