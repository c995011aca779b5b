package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/wabot/internal/contacts"
	"github.com/nextlevelbuilder/wabot/internal/jid"
)

func contactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Inspect and edit the stored contact names",
	}
	cmd.AddCommand(contactsListCmd())
	cmd.AddCommand(contactsResolveCmd())
	cmd.AddCommand(contactsSetCmd())
	return cmd
}

// openContacts loads the contact book from the configured backend. The
// returned func closes the backend.
func openContacts(ctx context.Context) (*contacts.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	stores, err := openStores(cfg)
	if err != nil {
		return nil, nil, err
	}
	book := contacts.New(stores.Contacts)
	if err := book.Load(ctx); err != nil {
		stores.Close()
		return nil, nil, err
	}
	return book, func() { stores.Close() }, nil
}

func contactsListCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored contacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			book, closeFn, err := openContacts(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			filter = strings.ToLower(strings.TrimSpace(filter))
			var rows [][]string
			for _, c := range book.All() {
				if filter != "" &&
					!strings.Contains(strings.ToLower(c.DisplayName), filter) &&
					!strings.Contains(c.ID, filter) {
					continue
				}
				rows = append(rows, []string{c.ID, kindOf(c.ID), c.DisplayName})
			}
			if len(rows) == 0 {
				fmt.Println("No contacts.")
				return nil
			}
			printTable(os.Stdout, []string{"HANDLE", "KIND", "NAME"}, rows)
			fmt.Printf("\n%d of %d contacts\n", len(rows), book.Len())
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "only show handles or names containing this text")
	return cmd
}

func contactsResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <handle-or-number>",
		Short: "Show the name the bot would use for a handle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			book, closeFn, err := openContacts(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			id := strings.TrimSpace(args[0])
			if !strings.Contains(id, "@") {
				if c, ok := book.FindByNumber(id); ok {
					fmt.Printf("%s  %s\n", c.ID, c.DisplayName)
					return nil
				}
				id = jid.UserJID(id)
			}
			fmt.Printf("%s  %s\n", id, book.ResolveName(cmd.Context(), id, contacts.ResolveHints{}))
			return nil
		},
	}
}

func contactsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <handle> <name>",
		Short: "Store a display name for a handle",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			book, closeFn, err := openContacts(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			id := strings.TrimSpace(args[0])
			if !strings.Contains(id, "@") {
				id = jid.UserJID(id)
			}
			name := strings.Join(args[1:], " ")
			book.CaptureContact(cmd.Context(), id, name, contacts.CaptureOptions{SkipLookup: true})
			if err := book.Flush(cmd.Context()); err != nil {
				return fmt.Errorf("save contacts: %w", err)
			}
			fmt.Printf("%s  %s\n", id, name)
			return nil
		},
	}
}

func kindOf(id string) string {
	switch {
	case jid.IsGroup(id):
		return "group"
	case jid.IsLID(id):
		return "lid"
	default:
		return "user"
	}
}
