package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/imvu-insight/datasync/internal/classify"
)

var (
	historyPage     int
	historyPageSize int
	historyType     string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List uploaded files",
	Long:  `List upload records on the service, newest first.`,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyPage, "page", 1, "Page number")
	historyCmd.Flags().IntVar(&historyPageSize, "page-size", 20, "Records per page")
	historyCmd.Flags().StringVar(&historyType, "type", "", "Filter by data type (product or income)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	var typ classify.DataType
	if historyType != "" {
		parsed, ok := classify.ParseDataType(historyType)
		if !ok {
			return fmt.Errorf("unknown data type %q (want product or income)", historyType)
		}
		typ = parsed
	}

	client, _, err := newClient()
	if err != nil {
		return err
	}

	list, err := client.ListRecords(cmd.Context(), historyPage, historyPageSize, typ)
	if err != nil {
		return err
	}

	if len(list.Items) == 0 {
		fmt.Println("No uploads found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUPLOADED\tTYPE\tFILENAME\tRECORDS\tSIZE")
	for _, rec := range list.Items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\n",
			rec.ID, rec.UploadedAt.Format("2006-01-02 15:04"),
			rec.Type.Label(), rec.Filename, rec.RecordCount, rec.FileSize)
	}
	w.Flush()

	pages := (list.Total + list.PageSize - 1) / list.PageSize
	fmt.Printf("Page %d of %d (%d upload(s) total)\n", list.Page, pages, list.Total)
	return nil
}
