package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"

	keepself "github.com/axondata/go-keepself"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Encode and decode worker identity records",
}

var identityEncodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Print the encoded identity record for the given fields",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		session, _ := cmd.Flags().GetUint32("session")
		parent, _ := cmd.Flags().GetInt32("parent-pid")
		names, _ := cmd.Flags().GetStringSlice("feature")

		features, err := keepself.ParseFeatures(names)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), keepself.EncodeIdentity(keepself.Identity{
			SessionID: session,
			ParentPID: parent,
			Features:  features,
		}))
		return nil
	},
}

var identityDecodeCmd = &cobra.Command{
	Use:   "decode [VALUE]",
	Short: "Decode an identity record, from VALUE or from KEEP_SELF_WORKER",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value := os.Getenv(keepself.DefaultWorkerEnvName)
		if len(args) == 1 {
			value = args[0]
		}

		id, err := keepself.DecodeIdentity(strings.TrimSpace(value))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			data, err := identityJSON(id)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		fmt.Fprintf(out, "Session:    %d\n", id.SessionID)
		fmt.Fprintf(out, "Parent PID: %d\n", id.ParentPID)
		fmt.Fprintf(out, "Features:   %s\n", id.Features)
		fmt.Fprintf(out, "Token:      %s\n", keepself.TokenName(int(id.ParentPID), id.SessionID))
		return nil
	},
}

func init() {
	identityEncodeCmd.Flags().Uint32("session", 1, "Session id")
	identityEncodeCmd.Flags().Int32("parent-pid", int32(os.Getpid()), "Host process id")
	identityEncodeCmd.Flags().StringSlice("feature", []string{"exit-when-host-exited", "skip-when-debugger-attached"}, "Feature names")

	identityDecodeCmd.Flags().Bool("json", false, "Output as JSON")

	identityCmd.AddCommand(identityEncodeCmd)
	identityCmd.AddCommand(identityDecodeCmd)
}

func identityJSON(id keepself.Identity) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	fields := []struct {
		path  string
		value any
	}{
		{"session_id", id.SessionID},
		{"parent_pid", id.ParentPID},
		{"features", uint32(id.Features)},
		{"feature_names", id.Features.Names()},
		{"token", keepself.TokenName(int(id.ParentPID), id.SessionID)},
	}
	for _, f := range fields {
		if data, err = sjson.SetBytes(data, f.path, f.value); err != nil {
			return nil, fmt.Errorf("encoding %s: %w", f.path, err)
		}
	}
	return data, nil
}
