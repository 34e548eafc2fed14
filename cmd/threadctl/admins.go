package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/villetakanen/pelilauta-17-sub000/internal/authz"
	"github.com/villetakanen/pelilauta-17-sub000/internal/docstore"
)

func init() {
	adminsCmd := &cobra.Command{Use: "admins", Short: "Admin allow-list operations"}

	withAdmins := func(run func(ctx context.Context, admins *authz.AdminList, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()
			return run(ctx, newAdminList(st), cmd.OutOrStdout(), args)
		}
	}

	adminsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the admin uids",
		RunE: withAdmins(func(ctx context.Context, admins *authz.AdminList, out io.Writer, _ []string) error {
			return listAdmins(ctx, admins, out)
		}),
	})
	adminsCmd.AddCommand(&cobra.Command{
		Use:   "add UID",
		Short: "Grant admin capability",
		Args:  cobra.ExactArgs(1),
		RunE: withAdmins(func(ctx context.Context, admins *authz.AdminList, out io.Writer, args []string) error {
			return editAdmins(ctx, admins.Add, args[0], out)
		}),
	})
	adminsCmd.AddCommand(&cobra.Command{
		Use:   "remove UID",
		Short: "Revoke admin capability",
		Args:  cobra.ExactArgs(1),
		RunE: withAdmins(func(ctx context.Context, admins *authz.AdminList, out io.Writer, args []string) error {
			return editAdmins(ctx, admins.Remove, args[0], out)
		}),
	})

	rootCmd.AddCommand(adminsCmd)
}

// newAdminList builds the list for a single command run; edits invalidate its cache.
func newAdminList(st docstore.Store) *authz.AdminList {
	return authz.NewAdminList(st, time.Minute)
}

func listAdmins(ctx context.Context, admins *authz.AdminList, out io.Writer) error {
	uids, err := admins.Admins(ctx)
	if err != nil {
		return err
	}
	for _, uid := range uids {
		_, _ = fmt.Fprintln(out, uid)
	}
	return nil
}

func editAdmins(ctx context.Context, edit func(context.Context, string) ([]string, error), uid string, out io.Writer) error {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return fmt.Errorf("uid is required")
	}
	uids, err := edit(ctx, uid)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "admins: %s\n", strings.Join(uids, ", "))
	return nil
}
