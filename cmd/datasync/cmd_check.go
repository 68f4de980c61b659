package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/imvu-insight/datasync/internal/digest"
)

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Check whether a file was already uploaded",
	Long: `Compute a file's content hash locally and ask the service whether an
upload with that hash already exists.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	hash := digest.Sum(content)

	client, _, err := newClient()
	if err != nil {
		return err
	}

	rec, err := client.RecordByHash(cmd.Context(), hash)
	if err != nil {
		return err
	}

	fmt.Printf("Hash: %s\n", hash)
	if rec == nil {
		fmt.Println("No matching upload on the server.")
		return nil
	}
	fmt.Printf("Already uploaded: record %d, %s (%s data), %d record(s), uploaded %s\n",
		rec.ID, rec.Filename, rec.Type.Label(), rec.RecordCount,
		rec.UploadedAt.Format("2006-01-02 15:04:05"))
	return nil
}
