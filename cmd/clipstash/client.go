package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipstash/internal/crypto"
	"go.klb.dev/clipstash/internal/ipc"
	"go.klb.dev/clipstash/internal/message"
	"go.klb.dev/clipstash/internal/wire"
)

// newClientCmd builds a command that talks to the daemon. The flags shared
// by every client command are registered here.
func newClientCmd(use, short string, args cobra.PositionalArgs, run func(cmd *cobra.Command, v *viper.Viper, args []string) error) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		Args:    args,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, args []string) error { return run(cmd, v, args) },
	}
	f := cmd.Flags()
	f.String("socket", ipc.SocketPath(), "daemon control socket path")
	f.String("passphrase", "", "passphrase the daemon was started with")
	f.Bool("json", false, "output raw JSON")
	addConfigFlag(cmd)
	return cmd
}

// call sends req to the daemon configured in v.
func call(ctx context.Context, v *viper.Viper, req *message.Message) (*message.Message, error) {
	var opts []wire.Option
	if p := v.GetString("passphrase"); p != "" {
		c, err := crypto.New(p)
		if err != nil {
			return nil, err
		}
		opts = append(opts, wire.WithCipher(c))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	resp, err := ipc.Call(ctx, v.GetString("socket"), req, opts...)
	switch {
	case errors.Is(err, message.ErrRemote):
		return nil, errors.New(resp.Error)
	case errors.Is(err, crypto.ErrDecrypt), errors.Is(err, io.EOF):
		// The daemon drops connections it cannot decode.
		return nil, fmt.Errorf("%w (check --passphrase matches the daemon)", err)
	case err != nil:
		return nil, err
	}
	return resp, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
