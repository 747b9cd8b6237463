package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dvanderweele/vzfs/internal/operator"
)

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list every filesystem database under the base directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withActor(cmd.Context(), func(actor *operator.Actor) error {
				reply := actor.Send(cmd.Context(), operator.Command{Kind: operator.ListFilesystems})
				if reply.Err != nil {
					return reply.Err
				}
				names, _ := reply.Data.([]string)
				for _, name := range names {
					fmt.Println(name)
				}
				return nil
			})
		},
	}
}

func dropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop <name>",
		Short: "delete a filesystem database outright",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(actor *operator.Actor) error {
				reply := actor.Send(cmd.Context(), operator.Command{
					Kind:           operator.DropFilesystem,
					DropFilesystem: operator.DropFilesystemPayload{FSName: args[0]},
				})
				return reply.Err
			})
		},
	}
}

func exportCmd() *cobra.Command {
	var fsName string
	c := &cobra.Command{
		Use:   "export",
		Short: "write a filesystem's entities, content and locks to stdout as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withActor(cmd.Context(), func(actor *operator.Actor) error {
				ctx := cmd.Context()
				init := actor.Send(ctx, operator.Command{Kind: operator.Init, Init: operator.InitPayload{FilesystemName: fsName, Version: 1}})
				if init.Err != nil {
					return init.Err
				}
				reply := actor.Send(ctx, operator.Command{Kind: operator.RipFilesystemToJSON})
				if reply.Err != nil {
					return reply.Err
				}
				backup, _ := reply.Data.(string)
				_, err := fmt.Println(backup)
				return err
			})
		},
	}
	c.Flags().StringVar(&fsName, "fs", "", "filesystem name to export (required)")
	_ = c.MarkFlagRequired("fs")
	return c
}

func importCmd() *cobra.Command {
	var fsName string
	c := &cobra.Command{
		Use:   "import",
		Short: "create a filesystem from a backup document read from stdin (refuses if it already exists)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := readAllStdin()
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), func(actor *operator.Actor) error {
				reply := actor.Send(cmd.Context(), operator.Command{
					Kind: operator.RestoreFilesystemFromJSON,
					RestoreFilesystemFromJSON: operator.RestoreFilesystemFromJSONPayload{
						FSName: fsName, Version: 1, Backup: body,
					},
				})
				return reply.Err
			})
		},
	}
	c.Flags().StringVar(&fsName, "fs", "", "filesystem name to create (required)")
	_ = c.MarkFlagRequired("fs")
	return c
}

func readAllStdin() (string, error) {
	buf := make([]byte, 0, 64*1024)
	chunk := make([]byte, 32*1024)
	for {
		n, err := os.Stdin.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return string(buf), nil
}
