package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (s *session) registerCommand() *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := s.app
			var err error
			if email == "" {
				if email, err = GetSimpleText(a.in, "Email", a.out); err != nil {
					return err
				}
			}
			password, err := GetNewPassword(a.out, "Account password: ")
			if err != nil {
				return err
			}

			reg, err := a.auth.Register(cmd.Context(), email, name, password)
			if err != nil {
				return err
			}
			success(a.out, "registered %s", reg.Email)
			if reg.VerificationToken != "" {
				fmt.Fprintf(a.out, "Verify the account with:\n  vaultsync verify %s\n", reg.VerificationToken)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&name, "name", "n", "", "display name")
	return cmd
}

func (s *session) verifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Confirm an account with its verification token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.app.auth.Verify(cmd.Context(), args[0]); err != nil {
				return err
			}
			success(s.app.out, "account verified, you can log in now")
			return nil
		},
	}
}

func (s *session) loginCommand() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Open a session on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := s.app
			var err error
			if email == "" {
				if email, err = GetSimpleText(a.in, "Email", a.out); err != nil {
					return err
				}
			}
			password, err := GetPassword(a.out, "Account password: ")
			if err != nil {
				return err
			}
			if _, err := a.auth.Login(cmd.Context(), email, password); err != nil {
				return err
			}
			success(a.out, "logged in as %s", email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	return cmd
}

func (s *session) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.app.auth.Logout(cmd.Context()); err != nil {
				return err
			}
			success(s.app.out, "logged out")
			return nil
		},
	}
}
