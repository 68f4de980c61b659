package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imvu-insight/datasync/internal/classify"
	"github.com/imvu-insight/datasync/internal/insight"
	"github.com/imvu-insight/datasync/internal/tabular"
	"github.com/imvu-insight/datasync/internal/wizard"
)

const previewRows = 5

var (
	importType      string
	importOverwrite bool
	importDryRun    bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a product or income data file",
	Long: `Import a .csv or .xml data file into the service.

The file is parsed and classified locally, the server is checked for an
earlier upload with the same content hash, and the file is then
submitted to the matching import endpoint. A detected duplicate blocks
the import unless --overwrite is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importType, "type", "", "Force the data type (product or income) instead of detecting it")
	importCmd.Flags().BoolVar(&importOverwrite, "overwrite", false, "Replace an existing upload with the same content")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate server-side without creating a record")
}

// apiAdapter bridges the insight client to the wizard's collaborator
// interface.
type apiAdapter struct {
	client *insight.Client
}

func (a *apiAdapter) RecordByHash(ctx context.Context, hash string) (*wizard.DuplicateRecord, error) {
	rec, err := a.client.RecordByHash(ctx, hash)
	if err != nil || rec == nil {
		return nil, err
	}
	return &wizard.DuplicateRecord{
		ID:          rec.ID,
		Type:        rec.Type,
		Filename:    rec.Filename,
		Hash:        rec.Hash,
		RecordCount: rec.RecordCount,
		FileSize:    rec.FileSize,
		UploadedAt:  rec.UploadedAt,
	}, nil
}

func (a *apiAdapter) ImportFile(ctx context.Context, typ classify.DataType, fileName string, content []byte, opts wizard.Options) (*wizard.SubmitResult, error) {
	res, err := a.client.ImportFile(ctx, typ, fileName, content, opts.Overwrite, opts.DryRun)
	if err != nil {
		return nil, err
	}
	out := &wizard.SubmitResult{ID: res.ID, Filename: res.Filename}
	if res.ImportedCount != nil {
		out.ImportedCount = *res.ImportedCount
	}
	return out, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx := cmd.Context()

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	client, _, err := newClient()
	if err != nil {
		return err
	}

	w := wizard.New(&apiAdapter{client: client})

	file := wizard.FileInfo{
		Name:     filepath.Base(path),
		Size:     info.Size(),
		Modified: info.ModTime(),
	}
	if err := w.SelectFile(ctx, file, content); err != nil {
		return err
	}

	if err := w.Next(ctx); err != nil {
		return err
	}
	printPreview(w)

	if importType != "" {
		typ, ok := classify.ParseDataType(importType)
		if !ok {
			return fmt.Errorf("unknown data type %q (want product or income)", importType)
		}
		w.SetType(typ)
	}

	if err := w.Next(ctx); err != nil {
		return err
	}
	w.SetOptions(wizard.Options{Overwrite: importOverwrite, DryRun: importDryRun})

	result, err := w.Submit(ctx)
	if err != nil {
		var dup *wizard.DuplicateError
		if errors.As(err, &dup) {
			printDuplicate(&dup.Record)
		}
		return err
	}

	if result.DryRun {
		fmt.Printf("Dry run passed: %s would import %d record(s) as %s data\n",
			file.Name, result.ImportedCount, result.Type.Label())
		return nil
	}
	fmt.Printf("Imported %s as %s data: record %d, %d record(s)\n",
		file.Name, result.Type.Label(), result.ID, result.ImportedCount)
	return nil
}

func printPreview(w *wizard.Wizard) {
	res := w.ParseResult()
	typ, _ := w.Detected()

	fmt.Printf("Parsed %d %s(s), detected type: %s\n",
		res.Summary.TotalRecords, res.Summary.RecordName, typ.Label())
	if len(res.Summary.RootAttrs) > 0 {
		keys := make([]string, 0, len(res.Summary.RootAttrs))
		for k := range res.Summary.RootAttrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + res.Summary.RootAttrs[k]
		}
		fmt.Printf("Document attributes: %s\n", strings.Join(parts, " "))
	}
	if len(res.Columns) > 0 {
		fmt.Printf("Columns: %s\n", strings.Join(res.Columns, ", "))
	}

	for i, row := range res.Rows {
		if i >= previewRows {
			fmt.Printf("  ... %d more\n", len(res.Rows)-previewRows)
			break
		}
		fmt.Printf("  %s\n", formatRow(row, res.Columns))
	}
}

func formatRow(row *tabular.Record, columns []string) string {
	values := make([]string, len(columns))
	for i, col := range columns {
		values[i] = row.Get(col)
	}
	return strings.Join(values, " | ")
}

func printDuplicate(rec *wizard.DuplicateRecord) {
	fmt.Fprintf(os.Stderr,
		"An identical file is already on the server:\n"+
			"  record %d: %s (%s data)\n"+
			"  uploaded %s, %d record(s), %d bytes\n"+
			"Use --overwrite to replace it.\n",
		rec.ID, rec.Filename, rec.Type.Label(),
		rec.UploadedAt.Format("2006-01-02 15:04:05"), rec.RecordCount, rec.FileSize)
}
