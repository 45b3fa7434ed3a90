// Copyright © 2024 Meroxa, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/quixio/demo-solar-farm-data-generator-sub001/internal/readmegen"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/internal/registry"
)

var (
	readme = flag.String("readme", "README.md", "Path of the README containing readmegen tags.")
	write  = flag.Bool("w", false, "Write the result to the README instead of stdout.")
)

func main() {
	flag.Parse()

	var out bytes.Buffer
	err := readmegen.Generate(registry.Connector().Specification(), readmegen.GenerateOptions{
		ReadmePath: *readme,
		Output:     &out,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if !*write {
		_, _ = out.WriteTo(os.Stdout)
		return
	}
	if err := os.WriteFile(*readme, out.Bytes(), 0o644); err != nil { //nolint:gosec // README is world readable
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
