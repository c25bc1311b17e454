package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"products-stocks-telegram/internal/domain"
	"products-stocks-telegram/internal/fulfillment"
	"products-stocks-telegram/internal/repository"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// storeOpener opens the configured backend; the schema is created on open
type storeOpener func(ctx context.Context) (repository.Store, error)

// newRootCmd creates the root stocksctl command with all subcommands attached.
func newRootCmd(open storeOpener, logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stocksctl",
		Short:         "Stock request dispatcher administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newMigrateCmd(open),
		newClaimantCmd(open),
		newReleaseCmd(open),
		newSweepCmd(open, logger),
		newLinkChatCmd(open),
	)

	return cmd
}

func withStore(cmd *cobra.Command, open storeOpener, fn func(ctx context.Context, store repository.Store) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := open(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	return fn(ctx, store)
}

func parseRequestID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid request id %q: %w", arg, err)
	}
	return id, nil
}

func newMigrateCmd(open storeOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, open, func(ctx context.Context, store repository.Store) error {
				fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
				return nil
			})
		},
	}
}

func newClaimantCmd(open storeOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "claimant <request-id>",
		Short: "Show who is packing a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRequestID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd, open, func(ctx context.Context, store repository.Store) error {
				claimant, err := store.FindClaimant(ctx, id)
				if errors.Is(err, domain.ErrClaimantNotFound) {
					fmt.Fprintf(cmd.OutOrStdout(), "Request %s is not claimed\n", id)
					return nil
				}
				if err != nil {
					return fmt.Errorf("claimant: %w", err)
				}
				name := claimant.Username
				if name == "" {
					name = claimant.ProfileID.String()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Request %s is claimed by %s\n", id, name)
				return nil
			})
		},
	}
}

func newReleaseCmd(open storeOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "release <request-id>",
		Short: "Return a claimed request to its queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRequestID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd, open, func(ctx context.Context, store repository.Store) error {
				affected, err := store.Release(ctx, id)
				if err != nil {
					return fmt.Errorf("release: %w", err)
				}
				if affected == 0 {
					return fmt.Errorf("release: request %s not found", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Released request %s\n", id)
				return nil
			})
		},
	}
}

func newSweepCmd(open storeOpener, logger *zap.Logger) *cobra.Command {
	var lease time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Release claims older than the lease once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lease <= 0 {
				return fmt.Errorf("sweep: --lease must be positive")
			}
			return withStore(cmd, open, func(ctx context.Context, store repository.Store) error {
				released, err := fulfillment.NewJanitor(store, lease, 0, logger).Sweep(ctx)
				if err != nil {
					return fmt.Errorf("sweep: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Released %d expired claims\n", released)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&lease, "lease", 0, "release claims held longer than this (e.g. 30m)")
	return cmd
}

func newLinkChatCmd(open storeOpener) *cobra.Command {
	var (
		username string
		inactive bool
	)

	cmd := &cobra.Command{
		Use:   "link-chat <chat-id> <profile-id>",
		Short: "Bind a Telegram chat to an operator profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("link-chat: invalid chat id %q: %w", args[0], err)
			}
			profile, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("link-chat: invalid profile id %q: %w", args[1], err)
			}
			return withStore(cmd, open, func(ctx context.Context, store repository.Store) error {
				if username != "" {
					if err := store.SaveProfile(ctx, profile, username); err != nil {
						return fmt.Errorf("link-chat: %w", err)
					}
				}
				if err := store.SaveAccount(ctx, chatID, profile, !inactive); err != nil {
					return fmt.Errorf("link-chat: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Linked chat %d to profile %s\n", chatID, profile)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "display name of the profile")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "store the account as inactive")
	return cmd
}
