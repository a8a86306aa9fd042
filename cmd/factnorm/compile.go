package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/factnorm/pkg/rules"
)

func newCompileCmd(a *app) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "compile [lang...]",
		Short: "Validate rule documents and write gob snapshots",
		Long: "Parse and compile the rule document of each language (every language in the rules\n" +
			"directory by default). Valid documents are snapshotted next to the document; snapshots\n" +
			"take priority at load time until the document is edited. With --check nothing is written.",
		RunE: func(cmd *cobra.Command, args []string) error {
			langs := args
			if len(langs) == 0 {
				var err error
				if langs, err = documentLanguages(a.cfg.RulesDir); err != nil {
					return err
				}
			}
			if len(langs) == 0 {
				return fmt.Errorf("no rule documents in %s", a.cfg.RulesDir)
			}

			failed := 0
			for _, lang := range langs {
				spec, err := rules.LoadFile(rules.Path(a.cfg.RulesDir, lang))
				if err == nil {
					if check {
						_, err = rules.Compile(spec)
					} else {
						err = rules.SaveSnapshot(spec, rules.SnapshotPath(a.cfg.RulesDir, lang))
					}
				}
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%-4s FAIL %v\n", lang, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-4s ok   %d categories, %d rules\n", lang, len(spec.Categories), spec.RuleCount())
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d rule documents invalid", failed, len(langs))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "validate only, do not write snapshots")
	return cmd
}

// documentLanguages lists the languages with a YAML document in dir.
// Snapshots alone do not count.
func documentLanguages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var langs []string
	for _, e := range entries {
		lang, ok := rules.LanguageOf(e.Name())
		if !ok || e.IsDir() || e.Name() != rules.Path("", lang) {
			continue
		}
		langs = append(langs, lang)
	}
	return langs, nil
}
