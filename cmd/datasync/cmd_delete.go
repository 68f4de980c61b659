package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an upload record",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid record id %q", args[0])
	}

	client, _, err := newClient()
	if err != nil {
		return err
	}
	if err := client.DeleteRecord(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Printf("Deleted record %d\n", id)
	return nil
}
