package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rbaliyan/privmsg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema and indexes of the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), v, func(context.Context, privmsg.Service) error {
				fmt.Fprintf(cmd.OutOrStdout(), "%s store is ready\n", v.GetString("driver"))
				return nil
			})
		},
	}
}

func newSendCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message, or a system message without --from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			title, _ := cmd.Flags().GetString("title")
			body, _ := cmd.Flags().GetString("body")
			msgContext, _ := cmd.Flags().GetString("context")
			origin, _ := cmd.Flags().GetString("origin")

			return withBackend(cmd.Context(), v, func(ctx context.Context, svc privmsg.Service) error {
				var (
					res *privmsg.ComposeResult
					err error
				)
				if from == "" {
					if origin != "" {
						return errors.New("a system message cannot answer --origin")
					}
					res, err = svc.SendSystemMessage(ctx, privmsg.SystemMessage{
						RecipientIDs: splitList(to),
						Title:        title,
						Body:         body,
						Context:      msgContext,
					})
				} else {
					res, err = svc.Client(from).Compose(ctx, privmsg.ComposeRequest{
						RecipientIDs: splitList(to),
						Title:        title,
						Body:         body,
						Context:      msgContext,
						OriginHash:   origin,
					})
				}
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for _, m := range res.Messages {
					fmt.Fprintf(out, "%s\t%s\n", m.Hash, m.RecipientID)
				}
				for _, id := range res.Blocked {
					fmt.Fprintf(out, "blocked\t%s\n", id)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("from", "", "sender user id; empty sends a system message")
	cmd.Flags().String("to", "", "comma separated recipient ids")
	cmd.Flags().String("title", "", "message title")
	cmd.Flags().String("body", "", "message body")
	cmd.Flags().String("context", "", "opaque application reference")
	cmd.Flags().String("origin", "", "hash of the message this one answers")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newInboxCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "List received messages of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			title, _ := cmd.Flags().GetString("title")
			from, _ := cmd.Flags().GetString("from")
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")

			return withBackend(cmd.Context(), v, func(ctx context.Context, svc privmsg.Service) error {
				list, err := svc.Client(user).Inbox(ctx, privmsg.ListOptions{
					Limit:           limit,
					Offset:          offset,
					TitleContains:   title,
					CorrespondentID: from,
				})
				if err != nil {
					return err
				}
				return printMessages(cmd, list)
			})
		},
	}
	cmd.Flags().String("user", "", "user id")
	cmd.Flags().String("title", "", "keep titles containing this text")
	cmd.Flags().String("from", "", "keep messages of this sender")
	cmd.Flags().Int("limit", 0, "page size")
	cmd.Flags().Int("offset", 0, "page offset")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newIgnoreCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ignore [user-id...]",
		Short: "Replace the ignore list of a user; no ids clears it",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")

			return withBackend(cmd.Context(), v, func(ctx context.Context, svc privmsg.Service) error {
				mb := svc.Client(user)
				if err := mb.SetIgnoreList(ctx, args...); err != nil {
					return err
				}
				entries, err := mb.IgnoreList(ctx)
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Fprintln(cmd.OutOrStdout(), e.BlockedID)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newRecipientsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipients",
		Short: "List the users a user may write to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")

			return withBackend(cmd.Context(), v, func(ctx context.Context, svc privmsg.Service) error {
				ids, err := svc.Client(user).PossibleRecipients(ctx)
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newSummaryCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the unread summary of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			n, _ := cmd.Flags().GetInt("n")

			return withBackend(cmd.Context(), v, func(ctx context.Context, svc privmsg.Service) error {
				sum, err := svc.Client(user).UnreadSummary(ctx, n)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "unread: %d remind: %t\n", sum.Count, sum.Remind)
				for _, item := range sum.Recent {
					fmt.Fprintf(out, "%s\t%s\t%s\n", item.Hash, item.SenderID, item.Title)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("user", "", "user id")
	cmd.Flags().Int("n", privmsg.DefaultSummarySize, "number of recent messages")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printMessages(cmd *cobra.Command, list *privmsg.MessageList) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HASH\tFROM\tSTATUS\tCREATED\tTITLE")
	for _, m := range list.Messages {
		sender := m.SenderID
		if sender == "" {
			sender = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			m.Hash, sender, m.Status, m.CreatedAt.Format(time.RFC3339), m.Title)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d\n", len(list.Messages), list.Total)
	return nil
}
