package main

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/grpcx"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
)

func healthCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the gRPC health service",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, _ := cmd.Flags().GetString("service")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			conn, err := grpcx.Dial(v.GetString("GRPC_ADDR"), grpcx.DialOptions{})
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
			if err != nil {
				return err
			}
			out, err := protojson.MarshalOptions{Multiline: true}.Marshal(resp)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("%s is %s", v.GetString("GRPC_ADDR"), resp.GetStatus())
			}
			return nil
		},
	}
	cmd.Flags().String("grpc-addr", v.GetString("GRPC_ADDR"), "booking-service gRPC address")
	cmd.Flags().String("service", "", "service name to check (empty for overall)")
	cmd.Flags().Duration("timeout", 3*time.Second, "RPC timeout")
	_ = v.BindPFlag("GRPC_ADDR", cmd.Flags().Lookup("grpc-addr"))
	return cmd
}
