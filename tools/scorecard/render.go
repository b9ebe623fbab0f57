// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ttbt-io/wicketkeeper/backend"
)

type renderOptions struct {
	*RootOptions
	dataDir string
	file    string
}

// NewRenderCommand prints the scorecard of stored matches.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &renderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render [match-id...]",
		Short: "Print the scorecard of stored matches",
		Long: `Load matches from the data directory, or a match JSON document from a
file, and print their scorecards. Encrypted stores are opened with the
passphrase in WK_MASTER_KEY.`,
		Example: `  scorecard render --data-dir data 6f1c0b8e-6a36-4d59-9df8-4d4b7f3c2a10
  scorecard render --file match.json --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "data", "directory for match and team data")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "read a match JSON document instead of the store")

	return cmd
}

func runRender(cmd *cobra.Command, opts *renderOptions, args []string) error {
	out := cmd.OutOrStdout()
	if opts.file != "" {
		if len(args) > 0 {
			return errors.New("--file and match ids are mutually exclusive")
		}
		sm, err := readMatchFile(opts.file)
		if err != nil {
			return err
		}
		return writeView(out, sm.View(), opts.Format)
	}
	if len(args) == 0 {
		return errors.New("at least one match id is required")
	}

	store, _, err := backend.OpenStorage(opts.dataDir, false)
	if err != nil {
		return err
	}
	ms := backend.NewMatchStore(opts.dataDir, store)
	for i, id := range args {
		sm, err := ms.LoadMatch(id)
		if err != nil {
			return fmt.Errorf("match %s: %w", id, err)
		}
		if sm.Deleted {
			return fmt.Errorf("match %s: deleted", id)
		}
		if i > 0 && opts.Format == "text" {
			fmt.Fprintln(out)
		}
		if err := writeView(out, sm.View(), opts.Format); err != nil {
			return err
		}
	}
	return nil
}

func readMatchFile(path string) (*backend.StoredMatch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sm backend.StoredMatch
	if err := json.Unmarshal(data, &sm); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sm.ID == "" {
		return nil, fmt.Errorf("%s: not a match document", path)
	}
	return &sm, nil
}
