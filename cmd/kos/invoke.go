package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kaedeos/kos/internal/runtime"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <category.name>",
	Short: "Invoke a raw syscall against a freshly constructed runtime",
	Long: `Invoke a single syscall by its "category.name" identifier, printing the
SyscallResult as JSON. Intended for manual testing of the dispatcher, not as a
long-lived client: each invocation constructs its own Runtime.`,
	Args: cobra.ExactArgs(1),
	RunE: runInvoke,
}

var invokeArgs []string

func init() {
	invokeCmd.Flags().StringArrayVar(&invokeArgs, "arg", nil, "syscall argument as key=value (repeatable)")
}

func runInvoke(cmd *cobra.Command, args []string) error {
	rt, err := runtime.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to construct runtime: %w", err)
	}

	callArgs, err := parseInvokeArgs(invokeArgs)
	if err != nil {
		return err
	}

	result := rt.Dispatcher.Invoke(context.Background(), args[0], callArgs)
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	if !result.Success {
		return fmt.Errorf("syscall failed: %s", result.ErrorCode)
	}
	return nil
}

// parseInvokeArgs turns repeated --arg key=value flags into a typed argument
// map: integers, booleans, and floats are parsed eagerly; everything else is
// passed through as a string.
func parseInvokeArgs(raw []string) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for _, kv := range raw {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --arg %q: expected key=value", kv)
		}
		key, value := parts[0], parts[1]

		if n, err := strconv.Atoi(value); err == nil {
			out[key] = n
			continue
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			out[key] = f
			continue
		}
		if b, err := strconv.ParseBool(value); err == nil {
			out[key] = b
			continue
		}
		out[key] = value
	}
	return out, nil
}
