package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipstash/internal/message"
)

var (
	errNoMatch   = errors.New("no history or pinned item matches")
	errAmbiguous = errors.New("id prefix is ambiguous")
)

func newPinCmd() *cobra.Command {
	return newClientCmd("pin <id>", "Pin an item, or unpin it if already pinned", cobra.ExactArgs(1),
		func(cmd *cobra.Command, v *viper.Viper, args []string) error {
			id, err := resolveID(cmd.Context(), v, args[0])
			if err != nil {
				return err
			}
			resp, err := call(cmd.Context(), v, &message.Message{Type: message.TypePin, ID: id})
			if err != nil {
				return err
			}
			state := "unpinned"
			if resp.Pinned != nil && *resp.Pinned {
				state = "pinned"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", shortID(id), state)
			return err
		})
}

func newDeleteCmd() *cobra.Command {
	return newClientCmd("delete <id>", "Delete an item from history and pins", cobra.ExactArgs(1),
		func(cmd *cobra.Command, v *viper.Viper, args []string) error {
			id, err := resolveID(cmd.Context(), v, args[0])
			if err != nil {
				return err
			}
			_, err = call(cmd.Context(), v, &message.Message{Type: message.TypeDelete, ID: id})
			return err
		})
}

func newClearCmd() *cobra.Command {
	return newClientCmd("clear", "Delete all history (pins are kept)", cobra.NoArgs,
		func(cmd *cobra.Command, v *viper.Viper, _ []string) error {
			_, err := call(cmd.Context(), v, &message.Message{Type: message.TypeClear})
			return err
		})
}

func newRestoreCmd() *cobra.Command {
	return newClientCmd("restore <id>", "Put an item back on the clipboard", cobra.ExactArgs(1),
		func(cmd *cobra.Command, v *viper.Viper, args []string) error {
			id, err := resolveID(cmd.Context(), v, args[0])
			if err != nil {
				return err
			}
			_, err = call(cmd.Context(), v, &message.Message{Type: message.TypeRestore, ID: id})
			return err
		})
}

// resolveID expands an id prefix, as printed by list and pins, to the full
// id of exactly one history or pinned item.
func resolveID(ctx context.Context, v *viper.Viper, prefix string) (string, error) {
	var ids []string
	for _, t := range []message.Type{message.TypeList, message.TypePins} {
		resp, err := call(ctx, v, &message.Message{Type: t})
		if err != nil {
			return "", err
		}
		for _, e := range resp.Entries {
			if e.ID == prefix {
				return e.ID, nil
			}
			if strings.HasPrefix(e.ID, prefix) {
				ids = append(ids, e.ID)
			}
		}
	}
	return matchID(prefix, ids)
}

func matchID(prefix string, ids []string) (string, error) {
	seen := make(map[string]struct{}, len(ids))
	var unique []string
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			unique = append(unique, id)
		}
	}
	switch len(unique) {
	case 0:
		return "", fmt.Errorf("%w %q", errNoMatch, prefix)
	case 1:
		return unique[0], nil
	}
	return "", fmt.Errorf("%w: %q matches %d items", errAmbiguous, prefix, len(unique))
}
