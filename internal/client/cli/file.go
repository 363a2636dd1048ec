package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/vaultsync/internal/client/models"
	"github.com/dmitrijs2005/vaultsync/internal/common"
)

func (s *session) fileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Store and fetch files in a vault",
	}
	cmd.AddCommand(s.filePutCommand(), s.fileGetCommand(), &cobra.Command{
		Use:   "list <vault>",
		Short: "List the files of a vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.listEntities(cmd, args[0], models.VersionTypeFile)
		},
	})
	return cmd
}

func (s *session) filePutCommand() *cobra.Command {
	var (
		title string
		meta  []string
	)
	cmd := &cobra.Command{
		Use:   "put <vault> <path>",
		Short: "Encrypt a file into the vault; it is uploaded on the next sync",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := models.MetadataFromString(meta)
			if err != nil {
				return common.ErrRequestInvalid.Wrap(err)
			}

			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			v, key, err := s.app.unlock(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			e, err := s.app.entities.PutFile(cmd.Context(), v.ID, key, title, filepath.Base(args[1]), md, f)
			if err != nil {
				return err
			}
			success(s.app.out, "file %q stored (%s)", e.Envelope.Title, e.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title, defaults to the file name")
	cmd.Flags().StringArrayVarP(&meta, "meta", "m", nil, "metadata as name=value, repeatable")
	return cmd
}

func (s *session) fileGetCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "get <vault> <id>",
		Short: "Decrypt a file, downloading missing chunks",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, key, err := s.app.unlock(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			e, err := s.app.entities.Get(cmd.Context(), v.ID, args[1], key)
			if err != nil {
				return err
			}
			if e.Type != models.VersionTypeFile {
				return common.ErrRequestInvalid.WithMessage("%s is not a file", args[1])
			}

			path := output
			if path == "" {
				details, err := e.Envelope.Unwrap()
				if err != nil {
					return err
				}
				info, _ := details.(models.FileInfo)
				path = filepath.Base(info.Name)
				if path == "." || path == string(filepath.Separator) || path == "" {
					path = e.ID
				}
			}

			// A failed download leaves no partial file at path.
			tmp, err := os.CreateTemp(filepath.Dir(path), ".vaultsync-*")
			if err != nil {
				return err
			}
			defer os.Remove(tmp.Name())

			if _, err := s.app.entities.GetFile(cmd.Context(), v.ID, args[1], key, tmp); err != nil {
				tmp.Close()
				return err
			}
			if err := tmp.Close(); err != nil {
				return err
			}
			if err := os.Rename(tmp.Name(), path); err != nil {
				return err
			}
			success(s.app.out, "saved %s", path)
			fmt.Fprintf(s.app.out, "  %s\n", e.Envelope.Title)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination path, defaults to the stored name")
	return cmd
}
