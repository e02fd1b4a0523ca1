package kv

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/qkv-io/qKV/lib/vclock"
	"github.com/spf13/cobra"
)

var (
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Writes the value for a key",
		Long:  "Writes the value for a key. Pass the context printed by a preceding get via --context to supersede the versions that read observed; without it the write is blind and may create a sibling.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := args[1]
			context, err := contextFromFlag(cmd)
			if err != nil {
				return err
			}
			vector, err := rpcClient.Put(key, []byte(value), context)
			if err != nil {
				return err
			}
			fmt.Printf("put successfully, context=%s\n", encodeContext(vector))
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Long:  "Reads the value for a key. If concurrent writes left multiple versions, all of them are printed; resolve the conflict by writing the merged value back with the printed context.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			versions, context, found, err := rpcClient.Get(key)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%v, versions=%d\n", key, found, len(versions))
			for i, v := range versions {
				fmt.Printf("  [%d] value=%s vector=%s\n", i, v.Value, v.Vector)
			}
			if found {
				fmt.Printf("context=%s\n", encodeContext(context))
			}
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Long:  "Deletes a key value pair. Like put, pass the context of a preceding get via --context so the delete supersedes the versions that read observed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			context, err := contextFromFlag(cmd)
			if err != nil {
				return err
			}
			if _, err := rpcClient.Delete(key, context); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints metadata about the contacted node's local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := rpcClient.Info()
			if err != nil {
				return err
			}
			fmt.Printf("engine=%s, keys=%d, siblings=%d, size=%d bytes\n",
				info.Engine, info.Keys, info.Siblings, info.SizeBytes)
			return nil
		},
	}
)

func init() {
	putCmd.Flags().String("context", "", "causal context from a preceding get")
	delCmd.Flags().String("context", "", "causal context from a preceding get")
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// encodeContext renders a version vector as a single copy-pasteable token
func encodeContext(c vclock.Clock) string {
	if len(c) == 0 {
		return "-"
	}
	data, _ := json.Marshal(c)
	return base64.StdEncoding.EncodeToString(data)
}

// contextFromFlag parses the --context flag back into a version vector
func contextFromFlag(cmd *cobra.Command) (vclock.Clock, error) {
	raw, err := cmd.Flags().GetString("context")
	if err != nil || raw == "" || raw == "-" {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid context: %v", err)
	}
	var c vclock.Clock
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("invalid context: %v", err)
	}
	return c, nil
}
