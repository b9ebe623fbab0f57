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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

type simulateOptions struct {
	*RootOptions
	scenario string
}

// NewSimulateCommand replays a YAML scenario through the scoring engine.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &simulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a YAML match scenario",
		Long: `Replay a scripted match ball by ball and print the resulting scorecard.

Every step is applied exactly as the server would apply it. A step with
"expect" must be rejected with that code; any other rejection stops the
replay.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.scenario, "scenario", "s", "", "path to the scenario YAML file (required)")
	_ = cmd.MarkFlagRequired("scenario")

	return cmd
}

func runSimulate(cmd *cobra.Command, opts *simulateOptions) error {
	sc, err := LoadScenario(opts.scenario)
	if err != nil {
		return err
	}
	var onEvent func(int, scoring.Event)
	if opts.Verbose {
		w := cmd.ErrOrStderr()
		onEvent = func(step int, ev scoring.Event) {
			fmt.Fprintf(w, "[step %d] %s", step, ev.Type)
			if ev.Player != "" {
				fmt.Fprintf(w, " %s", ev.Player)
			}
			if ev.Detail != "" {
				fmt.Fprintf(w, " (%s)", ev.Detail)
			}
			fmt.Fprintln(w)
		}
	}
	m, err := sc.Run(onEvent)
	if err != nil {
		return err
	}
	return writeView(cmd.OutOrStdout(), m.View(), opts.Format)
}
