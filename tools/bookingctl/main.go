// Command bookingctl is the operator CLI for booking-service: it mints dev
// tokens, triggers maintenance, probes health and tails the sync feed.
package main

import (
	"os"
	"strings"

	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newConfig() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("BOOKING_URL", "http://localhost:8083")
	v.SetDefault("GRPC_ADDR", "localhost:9083")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("TOKEN_TTL", "1h")

	_ = v.ReadInConfig()
	return v
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:          "bookingctl",
		Short:        "Operate a booking-service deployment",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("booking-url", v.GetString("BOOKING_URL"), "booking-service HTTP base url")
	root.PersistentFlags().String("jwt-secret", v.GetString("JWT_SECRET"), "HS256 secret shared with booking-service")
	_ = v.BindPFlag("BOOKING_URL", root.PersistentFlags().Lookup("booking-url"))
	_ = v.BindPFlag("JWT_SECRET", root.PersistentFlags().Lookup("jwt-secret"))

	root.AddCommand(tokenCmd(v))
	root.AddCommand(completeCmd(v))
	root.AddCommand(healthCmd(v))
	root.AddCommand(pollCmd(v))
	return root
}

func main() {
	ctx, stop := runtime.SignalContext()
	err := newRootCmd(newConfig()).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
