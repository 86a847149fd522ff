package cmd

import (
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/azula9713/yae-their-share/internal/db"
	"github.com/azula9713/yae-their-share/internal/output"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a JSON backup of the local store",
	Long: `Exports every split, deleted ones included, and every queued operation.
The backup can be restored with 'splitsync import'.`,
	GroupID: "data",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openAppOrFail(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		dump, err := a.engine.Store().Export(ctx)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		data, err := json.MarshalIndent(dump, "", "  ")
		if err != nil {
			output.Error("encode: %v", err)
			return err
		}
		data = append(data, '\n')

		outPath, _ := cmd.Flags().GetString("output")
		if outPath == "" || outPath == "-" {
			_, err = os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(outPath, data, 0600); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Exported %d split(s) and %d operation(s) to %s", len(dump.Splits), len(dump.Operations), outPath)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Restore a JSON backup into the local store",
	Long: `Upserts the backup's splits and re-queues its operations with fresh retry
counts. Reads stdin when the file is '-'.`,
	GroupID: "data",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dump, err := readDump(args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}

		ctx := cmd.Context()
		a, err := openAppOrFail(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		splits, ops, err := a.engine.Store().Import(ctx, dump)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Imported %d split(s) and %d operation(s)", splits, ops)
		return nil
	},
}

func readDump(path string) (*db.Dump, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var dump db.Dump
	if err := json.NewDecoder(r).Decode(&dump); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &dump, nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)

	exportCmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")
}
