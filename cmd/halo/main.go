package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	grpcapi "github.com/oriys/halo/internal/grpc"
	"github.com/spf13/cobra"
)

var (
	grpcAddr   string
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "halo",
		Short: "Halo operation invocation daemon",
		Long:  "Run the Halo daemon that serves bound operations, or talk to a running one over gRPC",
	}

	rootCmd.PersistentFlags().StringVar(&grpcAddr, "grpc", "localhost:9090", "Daemon gRPC address")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")

	rootCmd.AddCommand(
		daemonCmd(),
		invokeCmd(),
		beginCmd(),
		resultCmd(),
		operationsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func dial() (*grpcapi.Client, error) {
	return grpcapi.NewClient(grpcAddr)
}

func parseInputs(s string) ([]any, error) {
	if s == "" {
		return nil, nil
	}
	var inputs []any
	if err := json.Unmarshal([]byte(s), &inputs); err != nil {
		return nil, fmt.Errorf("parse inputs: %w", err)
	}
	return inputs, nil
}

func printReply(r *grpcapi.InvokeReply) {
	fmt.Printf("Status:      %s\n", r.Status)
	fmt.Printf("Correlation: %s\n", r.Correlation)
	fmt.Printf("Duration:    %d ms\n", r.DurationMs)
	if r.Fault != nil {
		fmt.Printf("Fault:       %s: %s\n", r.Fault.Code, r.Fault.Message)
		if r.Fault.Detail != nil {
			detail, _ := json.Marshal(r.Fault.Detail)
			fmt.Printf("Detail:      %s\n", detail)
		}
		return
	}
	if r.Error != "" {
		fmt.Printf("Error:       %s\n", r.Error)
		return
	}
	if r.Value != nil {
		value, _ := json.MarshalIndent(r.Value, "", "  ")
		fmt.Printf("Value:\n%s\n", value)
	}
	if len(r.Outputs) > 0 {
		outputs, _ := json.MarshalIndent(r.Outputs, "", "  ")
		fmt.Printf("Outputs:\n%s\n", outputs)
	}
}

func invokeCmd() *cobra.Command {
	var (
		inputsJSON  string
		correlation string
		timeoutS    int
	)

	cmd := &cobra.Command{
		Use:   "invoke <operation>",
		Short: "Invoke an operation and wait for the outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := parseInputs(inputsJSON)
			if err != nil {
				return err
			}

			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutS)*time.Second)
			defer cancel()

			reply, err := c.Invoke(ctx, &grpcapi.InvokeRequest{
				Operation:   args[0],
				Inputs:      inputs,
				Correlation: correlation,
			})
			if err != nil {
				return err
			}

			printReply(reply)
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputsJSON, "inputs", "i", "[]", "Operation inputs as a JSON array")
	cmd.Flags().StringVar(&correlation, "correlation", "", "Correlation token (minted when empty)")
	cmd.Flags().IntVar(&timeoutS, "timeout", 60, "Invocation timeout in seconds")

	return cmd
}

func beginCmd() *cobra.Command {
	var (
		inputsJSON  string
		correlation string
	)

	cmd := &cobra.Command{
		Use:   "begin <operation>",
		Short: "Start an asynchronous invocation and print its call token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := parseInputs(inputsJSON)
			if err != nil {
				return err
			}

			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			reply, err := c.Begin(context.Background(), &grpcapi.BeginRequest{
				Operation:   args[0],
				Inputs:      inputs,
				Correlation: correlation,
			})
			if err != nil {
				return err
			}

			fmt.Println(reply.Token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputsJSON, "inputs", "i", "[]", "Operation inputs as a JSON array")
	cmd.Flags().StringVar(&correlation, "correlation", "", "Correlation token (minted when empty)")

	return cmd
}

func resultCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "result <token>",
		Short: "Fetch the outcome of an asynchronous invocation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			reply, err := c.Result(context.Background(), &grpcapi.ResultRequest{
				Token: args[0],
				Wait:  wait,
			})
			if err != nil {
				return err
			}

			if !reply.Settled {
				fmt.Printf("Call %s (%s) is still running\n", reply.Token, reply.Operation)
				return nil
			}
			printReply(reply.Result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the call settles")

	return cmd
}

func operationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "operations",
		Short:   "List the operations bound on the daemon",
		Aliases: []string{"ops", "ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			reply, err := c.ListOperations(context.Background())
			if err != nil {
				return err
			}

			if len(reply.Operations) == 0 {
				fmt.Println("No operations bound")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tINPUTS\tOUTPUTS\tRETURN\tDISABLED")
			for _, op := range reply.Operations {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%v\n",
					op.Name,
					op.Inputs,
					op.Outputs,
					op.Return,
					op.Disabled,
				)
			}
			w.Flush()
			return nil
		},
	}
}
