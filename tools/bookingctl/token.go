package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func mintToken(v *viper.Viper, sub, role string) (string, error) {
	secret := v.GetString("JWT_SECRET")
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("JWT_SECRET is required")
	}
	ttl := v.GetDuration("TOKEN_TTL")
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	return auth.SignHS256(auth.Claims{
		Sub:  sub,
		Role: role,
		Iat:  now.Unix(),
		Exp:  now.Add(ttl).Unix(),
	}, secret)
}

func tokenCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint an HS256 bearer token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			switch role {
			case auth.RoleProvider, auth.RoleRequester, auth.RoleSystem:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			tok, err := mintToken(v, args[0], role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("role", auth.RoleRequester, "provider, requester or system")
	cmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	_ = v.BindPFlag("TOKEN_TTL", cmd.Flags().Lookup("ttl"))
	return cmd
}
