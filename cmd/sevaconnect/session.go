package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sevaconnect-backend/pkg/app"
	"sevaconnect-backend/pkg/session"
)

var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and keep the session in the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if loginEmail == "" || loginPassword == "" {
			return errors.New("--email and --password are required")
		}
		return withApp(cmd.Context(), func(a *app.App) error {
			user, err := a.Authenticate(cmd.Context(), loginEmail, loginPassword)
			if err != nil {
				return err
			}
			access, refresh, expiresAt, err := a.JWT.GenerateTokenPair(user)
			if err != nil {
				return err
			}
			if err := a.Sessions.Save(cmd.Context(), session.Session{
				User:         user,
				AccessToken:  access,
				RefreshToken: refresh,
				ExpiresAt:    time.Unix(expiresAt, 0).UTC(),
			}); err != nil {
				return err
			}
			fmt.Printf("✅ Signed in as %s (%s)\n", user.Email, user.Role)
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			if err := a.Sessions.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("👋 Signed out")
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			s, ok := a.Sessions.Current()
			if !ok {
				fmt.Println("Not signed in")
				return nil
			}
			state := "valid until " + s.ExpiresAt.Local().Format(time.RFC1123)
			if s.Expired(time.Now()) {
				access, expiresAt, err := a.JWT.RefreshAccessToken(s.RefreshToken)
				if err != nil {
					state = "expired, run login again"
				} else {
					s.AccessToken = access
					s.ExpiresAt = time.Unix(expiresAt, 0).UTC()
					if err := a.Sessions.Save(cmd.Context(), s); err != nil {
						return err
					}
					state = "refreshed, valid until " + s.ExpiresAt.Local().Format(time.RFC1123)
				}
			}
			fmt.Printf("%s (%s, id %s), %s\n", s.User.Email, s.User.Role, s.User.ID, state)
			return nil
		})
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password")
}
