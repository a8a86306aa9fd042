package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/factnorm/pkg/normalize"
)

// normalizeLine is one output record of the normalize command.
type normalizeLine struct {
	Line    int               `json:"line"`
	Matches []normalize.Match `json:"matches"`
}

func newNormalizeCmd(a *app) *cobra.Command {
	var (
		lang     string
		conflict string
		many     bool
	)
	cmd := &cobra.Command{
		Use:   "normalize [text...]",
		Short: "Normalize dates and durations in text",
		Long: "Normalize the text given as arguments, or every line of stdin, and print one JSON\n" +
			"object per input line. Without --many only the best match is reported.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := normalize.ParseConflict(conflict)
			if err != nil {
				return err
			}
			n, err := a.normalizer(lang)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			run := func(line int, text string) error {
				out := normalizeLine{Line: line, Matches: []normalize.Match{}}
				if many {
					matches, err := n.All(text)
					if err != nil {
						return fmt.Errorf("line %d: %w", line, err)
					}
					if matches != nil {
						out.Matches = matches
					}
				} else {
					m, err := n.NormalizeOne(text, c)
					if err != nil {
						return fmt.Errorf("line %d: %w", line, err)
					}
					if m.Found() {
						out.Matches = append(out.Matches, m)
					}
				}
				return enc.Encode(out)
			}

			if len(args) > 0 {
				return run(1, strings.Join(args, " "))
			}
			sc := bufio.NewScanner(cmd.InOrStdin())
			sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
			line := 0
			for sc.Scan() {
				line++
				if err := run(line, sc.Text()); err != nil {
					return err
				}
			}
			return sc.Err()
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "rule language (default from config)")
	cmd.Flags().StringVar(&conflict, "conflict", "first", "best match policy: first, longest or shortest")
	cmd.Flags().BoolVar(&many, "many", false, "report every non-overlapping match")
	return cmd
}

func newRealignCmd(a *app) *cobra.Command {
	var (
		lang    string
		charset string
		output  string
	)
	cmd := &cobra.Command{
		Use:   "realign [tokens.tsv]",
		Short: "Merge date and duration tokens of tagged sentences",
		Long: "Read tab-separated token rows (sentence id, index, token, entity, lemma, [extra...], pos, tag)\n" +
			"from a file or stdin and write them back with every normalized span merged into one ENT token.\n" +
			"Sentences that cannot be realigned are written unchanged; a failing transform aborts the run.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.normalizer(lang)
			if err != nil {
				return err
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
			sentences, err := normalize.ReadTokens(in, charset)
			if err != nil {
				return err
			}

			out, closeOut, err := openOutput(cmd, output)
			if err != nil {
				return err
			}
			defer closeOut()

			failed := 0
			for _, tokens := range sentences {
				id := tokens[0].SentenceID
				realigned, err := normalize.Realign(n, id, tokens)
				if errors.Is(err, normalize.ErrTransform) {
					return err
				}
				if err != nil {
					failed++
					a.logger.Warn("sentence left unchanged", "sentence", id, "error", err)
				}
				if err := normalize.WriteTokens(out, realigned); err != nil {
					return fmt.Errorf("write sentence %s: %w", id, err)
				}
			}
			a.logger.Info("realignment done", "sentences", len(sentences), "unchanged", failed)
			return nil
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "rule language (default from config)")
	cmd.Flags().StringVar(&charset, "charset", "utf-8", "input encoding (e.g. iso-8859-1)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

// normalizer loads the rules of lang, or of the configured default language.
func (a *app) normalizer(lang string) (*normalize.Normalizer, error) {
	if lang == "" {
		lang = a.cfg.DefaultLanguage
	}
	n, err := normalize.Load(a.cfg.RulesDir, lang)
	if err != nil {
		return nil, fmt.Errorf("load %s rules: %w", lang, err)
	}
	return n, nil
}

// openOutput returns stdout, or a created file when path is set.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
