package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/vaultsync/internal/client/models"
	"github.com/dmitrijs2005/vaultsync/internal/client/services"
	"github.com/dmitrijs2005/vaultsync/internal/common"
)

// itemKinds maps the --type flag to an entry type.
var itemKinds = map[string]models.EntryType{
	"note":  models.EntryTypeNote,
	"login": models.EntryTypeLogin,
	"card":  models.EntryTypeCreditCard,
}

type itemFlags struct {
	kind  string
	title string
	meta  []string
}

func (s *session) itemCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Manage notes, logins and cards in a vault",
	}
	cmd.AddCommand(s.itemAddCommand(), s.itemUpdateCommand(), s.itemGetCommand(), s.itemListCommand(), s.itemDeleteCommand())
	return cmd
}

func (s *session) itemAddCommand() *cobra.Command {
	var f itemFlags
	cmd := &cobra.Command{
		Use:   "add <vault>",
		Short: "Add an item, asking for its fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := itemKinds[f.kind]
			if !ok {
				return common.ErrRequestInvalid.WithMessage("unknown item type %q, use note, login or card", f.kind)
			}
			v, key, err := s.app.unlock(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			env, err := s.readEnvelope(kind, f)
			if err != nil {
				return err
			}
			e, err := s.app.entities.AddItem(cmd.Context(), v.ID, key, env)
			if err != nil {
				return err
			}
			success(s.app.out, "%s %q added (%s)", f.kind, env.Title, e.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.kind, "type", "t", "note", "note, login or card")
	cmd.Flags().StringVar(&f.title, "title", "", "item title")
	cmd.Flags().StringArrayVarP(&f.meta, "meta", "m", nil, "metadata as name=value, repeatable")
	return cmd
}

func (s *session) itemUpdateCommand() *cobra.Command {
	var f itemFlags
	cmd := &cobra.Command{
		Use:   "update <vault> <id>",
		Short: "Replace an item with a new version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, key, err := s.app.unlock(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			current, err := s.app.entities.Get(cmd.Context(), v.ID, args[1], key)
			if err != nil {
				return err
			}
			if current.Type != models.VersionTypeItem {
				return common.ErrRequestInvalid.WithMessage("%s is a file, upload a new one instead", args[1])
			}
			fmt.Fprintf(s.app.out, "Updating %q, enter the new values\n", current.Envelope.Title)
			env, err := s.readEnvelope(current.Envelope.Type, f)
			if err != nil {
				return err
			}
			if _, err := s.app.entities.UpdateItem(cmd.Context(), v.ID, args[1], key, env); err != nil {
				return err
			}
			success(s.app.out, "item %s updated", args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&f.title, "title", "", "item title")
	cmd.Flags().StringArrayVarP(&f.meta, "meta", "m", nil, "metadata as name=value, repeatable")
	return cmd
}

func (s *session) itemGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <vault> <id>",
		Short: "Show an item or a file's description",
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
			return printEntity(s.app.out, e)
		},
	}
}

func (s *session) itemListCommand() *cobra.Command {
	var files bool
	cmd := &cobra.Command{
		Use:   "list <vault>",
		Short: "List the items of a vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ := models.VersionTypeItem
			if files {
				typ = ""
			}
			return s.listEntities(cmd, args[0], typ)
		},
	}
	cmd.Flags().BoolVarP(&files, "all", "a", false, "include files")
	return cmd
}

func (s *session) itemDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <vault> <id>",
		Short: "Delete an item or a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := s.app.vaults.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := s.app.entities.Delete(cmd.Context(), v.ID, args[1]); err != nil {
				return err
			}
			success(s.app.out, "%s deleted", args[1])
			return nil
		},
	}
}

func (s *session) listEntities(cmd *cobra.Command, ref string, typ models.VersionType) error {
	v, key, err := s.app.unlock(cmd.Context(), ref)
	if err != nil {
		return err
	}
	list, err := s.app.entities.List(cmd.Context(), v.ID, key, typ)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(s.app.out, "nothing here yet")
		return nil
	}
	tw := tabwriter.NewWriter(s.app.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tTITLE\tCHANGED")
	for _, e := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.Envelope.Type, e.Envelope.Title, e.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

// readEnvelope asks for the title (unless given), the type-specific
// fields and then the metadata (unless given).
func (s *session) readEnvelope(kind models.EntryType, f itemFlags) (models.Envelope, error) {
	in, out := s.app.in, s.app.out

	title := f.title
	if title == "" {
		var err error
		if title, err = GetSimpleText(in, "Title", out); err != nil {
			return models.Envelope{}, err
		}
	}

	details, err := s.readDetails(kind)
	if err != nil {
		return models.Envelope{}, err
	}

	raw := f.meta
	if len(raw) == 0 {
		if raw, err = GetMetadata(in, out); err != nil {
			return models.Envelope{}, err
		}
	}
	md, err := models.MetadataFromString(raw)
	if err != nil {
		return models.Envelope{}, common.ErrRequestInvalid.Wrap(err)
	}

	return models.Wrap(kind, title, md, details)
}

func (s *session) readDetails(kind models.EntryType) (any, error) {
	in, out := s.app.in, s.app.out
	var err error

	switch kind {
	case models.EntryTypeLogin:
		var l models.Login
		if l.Username, err = GetSimpleText(in, "Username", out); err != nil {
			return nil, err
		}
		if l.Password, err = GetPassword(out, "Password: "); err != nil {
			return nil, err
		}
		if l.URL, err = GetSimpleText(in, "URL", out); err != nil {
			return nil, err
		}
		return l, nil
	case models.EntryTypeCreditCard:
		var c models.CreditCard
		fields := []struct {
			prompt string
			dst    *string
		}{
			{"Card number", &c.Number},
			{"Expiration (MM/YY)", &c.Expiration},
			{"CVV", &c.CVV},
			{"Card holder", &c.Holder},
		}
		for _, fl := range fields {
			if *fl.dst, err = GetSimpleText(in, fl.prompt, out); err != nil {
				return nil, err
			}
		}
		return c, nil
	case models.EntryTypeNote:
		text, err := GetMultiline(in, "Note text", out)
		if err != nil {
			return nil, err
		}
		return models.Note{Text: text}, nil
	default:
		return nil, common.ErrRequestInvalid.WithMessage("%s entries cannot be edited here", kind)
	}
}

func printEntity(w io.Writer, e *services.Entity) error {
	details, err := e.Envelope.Unwrap()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s (%s)\n", e.Envelope.Title, e.Envelope.Type)
	fmt.Fprintf(w, "  id:       %s\n", e.ID)
	fmt.Fprintf(w, "  version:  %s\n", e.VersionID)

	switch d := details.(type) {
	case models.Login:
		fmt.Fprintf(w, "  username: %s\n  password: %s\n  url:      %s\n", d.Username, d.Password, d.URL)
	case models.CreditCard:
		fmt.Fprintf(w, "  number:   %s\n  expires:  %s\n  cvv:      %s\n  holder:   %s\n", d.Number, d.Expiration, d.CVV, d.Holder)
	case models.Note:
		fmt.Fprintf(w, "  text:\n    %s\n", strings.ReplaceAll(d.Text, "\n", "\n    "))
	case models.FileInfo:
		fmt.Fprintf(w, "  file:     %s (%d bytes)\n", d.Name, d.Size)
	default:
		fmt.Fprintf(w, "  details:  %v\n", d)
	}

	for _, m := range e.Envelope.Metadata {
		fmt.Fprintf(w, "  %s = %s\n", m.Name, m.Value)
	}
	return nil
}
