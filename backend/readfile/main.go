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

// readfile prints stored matches and teams as indented JSON. Arguments are
// paths relative to the data directory, e.g. matches/<id>.json, or bare
// match ids.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ttbt-io/wicketkeeper/backend"
)

var (
	dataDir  = flag.String("data-dir", "data", "Directory for match and team data")
	withView = flag.Bool("view", false, "Print the derived scoreboard instead of the stored match")
)

func main() {
	flag.Parse()
	store, _, err := backend.OpenStorage(*dataDir, false)
	if err != nil {
		log.Fatal(err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	for _, arg := range flag.Args() {
		arg = strings.TrimPrefix(strings.TrimPrefix(arg, *dataDir), string(filepath.Separator))
		if !strings.HasSuffix(arg, ".json") {
			arg = filepath.Join("matches", arg+".json")
		}

		var obj any
		switch {
		case strings.HasSuffix(arg, ".meta.json"):
			obj = new(backend.MatchMetadata)
		case strings.HasPrefix(arg, "teams"):
			obj = new(backend.StoredTeam)
		default:
			obj = new(backend.StoredMatch)
		}
		if err := store.ReadDataFile(arg, obj); err != nil {
			log.Printf("%s: %v", arg, err)
			continue
		}
		if sm, ok := obj.(*backend.StoredMatch); ok && *withView {
			obj = sm.View()
		}
		fmt.Printf("=========== %s ===========\n", arg)
		if err := enc.Encode(obj); err != nil {
			log.Printf("JSON: %s: %v", arg, err)
		}
	}
}
