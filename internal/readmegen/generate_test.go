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

package readmegen

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matryer/is"
	connector "github.com/quixio/demo-solar-farm-data-generator-sub001"
)

func testSpecification() connector.Specification {
	return connector.Specification{
		Name:    "solarsink",
		Summary: "Delivers solar panel readings.",
		Version: "v0.1.0",
		Components: map[string]connector.Parameters{
			"destination.sqlite": {
				"sqlite.path": {
					Default:     "solar.db",
					Description: "Path of the database file.",
					Type:        connector.ParameterTypeString,
				},
				"sqlite.table": {
					Description: "Table name.",
					Type:        connector.ParameterTypeString,
					Validations: []connector.Validation{connector.ValidationRequired{}},
				},
			},
		},
	}
}

func TestRender(t *testing.T) {
	is := is.New(t)

	readme := `# <!-- readmegen:name -->x<!-- /readmegen:name -->

<!-- readmegen:components --><!-- /readmegen:components -->

<!-- readmegen:parameters.table.destination.sqlite --><!-- /readmegen:parameters.table.destination.sqlite -->
`
	var out bytes.Buffer
	is.NoErr(Render(testSpecification(), readme, &out))

	got := out.String()
	is.True(strings.HasPrefix(got, "# <!-- readmegen:name -->Solarsink<!-- /readmegen:name -->"))
	is.True(strings.Contains(got, "\n- `destination.sqlite`\n"))
	is.True(strings.Contains(got, "| `sqlite.path` | Path of the database file. | string | no | `solar.db` |"))
	is.True(strings.Contains(got, "| `sqlite.table` | Table name. | string | yes |  |"))
}

func TestGenerate_YAML(t *testing.T) {
	is := is.New(t)

	path := filepath.Join(t.TempDir(), "README.md")
	is.NoErr(os.WriteFile(path, []byte("<!-- readmegen:parameters.yaml.destination.sqlite --><!-- /readmegen:parameters.yaml.destination.sqlite -->"), 0o600))

	var out bytes.Buffer
	is.NoErr(Generate(testSpecification(), GenerateOptions{ReadmePath: path, Output: &out}))

	got := out.String()
	is.True(strings.Contains(got, "# Path of the database file.\n# Type: string\nsqlite.path: \"solar.db\""))
	is.True(strings.Contains(got, "# Type: string, required\nsqlite.table: \"\""))
}

func TestGenerate_MissingFile(t *testing.T) {
	is := is.New(t)
	err := Generate(testSpecification(), GenerateOptions{ReadmePath: filepath.Join(t.TempDir(), "nope.md")})
	is.True(err != nil)
}

func TestFormatCommentYAML(t *testing.T) {
	is := is.New(t)

	long := strings.Repeat("word ", 30)
	got := formatCommentYAML(long, 2)
	lines := strings.Split(got, "\n")
	is.True(len(lines) > 1)
	is.True(strings.HasPrefix(lines[0], "# word"))
	for _, l := range lines[1:] {
		is.True(strings.HasPrefix(l, "  # word"))
		is.True(len(l) <= 80)
	}

	is.Equal(formatCommentYAML("short\n\nparagraphs", 0), "# short\n# paragraphs")
}
