package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/factnorm/pkg/statement"
)

func newSerializeCmd(a *app) *cobra.Command {
	var (
		lang      string
		frames    string
		urls      string
		labels    string
		output    string
		workers   int
		noNumeric bool
	)
	cmd := &cobra.Command{
		Use:   "serialize [records.jsonl]",
		Short: "Turn classified sentences into QuickStatements",
		Long: "Read one classified sentence per line (JSON with url, name, sentence and fes) and write\n" +
			"one QuickStatement per line. Dates and durations found in each sentence become point in\n" +
			"time, start time and end time statements unless the record already carries Time or\n" +
			"Duration FEs.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if lang == "" {
				lang = a.cfg.DefaultLanguage
			}
			cfg := statement.Config{
				Language: lang,
				Workers:  workers,
				Logger:   a.logger,
			}

			if !noNumeric {
				n, err := a.normalizer(lang)
				if err != nil {
					return err
				}
				cfg.Normalizer = n
			}
			if frames != "" {
				err := withFile(frames, func(r io.Reader) (err error) {
					cfg.Properties, err = statement.LoadFrameData(r, a.logger)
					return err
				})
				if err != nil {
					return err
				}
			}
			if urls != "" {
				err := withFile(urls, func(r io.Reader) (err error) {
					cfg.URLs, err = statement.MapURLToEntity(r)
					return err
				})
				if err != nil {
					return err
				}
			}
			if labels != "" {
				err := withFile(labels, func(r io.Reader) error {
					l, err := statement.LoadLabels(r)
					cfg.Resolver = l
					return err
				})
				if err != nil {
					return err
				}
			}

			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			out, closeOut, err := openOutput(cmd, output)
			if err != nil {
				return err
			}
			defer closeOut()

			_, err = statement.NewSerializer(cfg).Run(cmd.Context(), in, out)
			return err
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "sentence language (default from config)")
	cmd.Flags().StringVar(&frames, "frames", "", "lexical unit -> frame elements JSON, maps FEs to properties")
	cmd.Flags().StringVar(&urls, "url-map", "", "existing QuickStatements whose source URLs identify the subject")
	cmd.Flags().StringVar(&labels, "labels", "", "tab-separated label -> entity id file used to resolve chunks")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().IntVarP(&workers, "workers", "w", runtime.NumCPU(), "records serialized concurrently")
	cmd.Flags().BoolVar(&noNumeric, "no-numeric", false, "skip date and duration normalization")
	return cmd
}

func withFile(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
