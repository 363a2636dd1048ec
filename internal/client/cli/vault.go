package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (s *session) vaultCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Create, list, unlock and manage vaults",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create <name>",
			Short: "Create a vault protected by its own password",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				password, err := GetNewPassword(s.app.out, "Vault password: ")
				if err != nil {
					return err
				}
				v, err := s.app.vaults.Create(cmd.Context(), args[0], password)
				if err != nil {
					return err
				}
				success(s.app.out, "vault %s created (%s)", v.Name, v.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List vaults in the local mirror",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				list, err := s.app.vaults.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintln(s.app.out, "no vaults")
					return nil
				}
				tw := tabwriter.NewWriter(s.app.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tUPDATED")
				for _, v := range list {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", v.ID, v.Name, v.UpdatedAt.Local().Format("2006-01-02 15:04"))
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "unlock <vault>",
			Short: "Check a vault password; the shell keeps the vault unlocked",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, _, err := s.app.unlock(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				success(s.app.out, "vault %s unlocked", v.Name)
				return nil
			},
		},
		&cobra.Command{
			Use:   "lock <vault>",
			Short: "Forget an unlocked vault key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := s.app.vaults.Resolve(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				s.app.lock(v.ID)
				success(s.app.out, "vault %s locked", v.Name)
				return nil
			},
		},
		&cobra.Command{
			Use:   "rotate-password <vault>",
			Short: "Change a vault password without re-encrypting its content",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				old, err := GetPassword(s.app.out, "Current vault password: ")
				if err != nil {
					return err
				}
				next, err := GetNewPassword(s.app.out, "New vault password: ")
				if err != nil {
					return err
				}
				if err := s.app.vaults.RotatePassword(cmd.Context(), args[0], old, next); err != nil {
					return err
				}
				success(s.app.out, "vault password changed")
				return nil
			},
		},
		&cobra.Command{
			Use:   "rename <vault> <name>",
			Short: "Rename a vault",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := s.app.vaults.Rename(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				success(s.app.out, "vault renamed to %s", args[1])
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <vault>",
			Short: "Delete a vault here and, on the next sync, on the server",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := s.app.vaults.Resolve(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := s.app.vaults.Delete(cmd.Context(), v.ID); err != nil {
					return err
				}
				s.app.lock(v.ID)
				success(s.app.out, "vault %s deleted", v.Name)
				return nil
			},
		},
	)
	return cmd
}
