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

// Package readmegen renders the parts of a README that describe the
// configuration of the service.
package readmegen

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	connector "github.com/quixio/demo-solar-farm-data-generator-sub001"
)

//go:embed templates/*.tmpl
var templates embed.FS

type GenerateOptions struct {
	ReadmePath string
	Output     io.Writer
}

// Generate reads the README at opts.ReadmePath, replaces the content between
// readmegen tags and writes the result to opts.Output.
func Generate(spec connector.Specification, opts GenerateOptions) error {
	readme, err := os.ReadFile(opts.ReadmePath)
	if err != nil {
		return fmt.Errorf("could not read readme file %v: %w", opts.ReadmePath, err)
	}
	return Render(spec, string(readme), opts.Output)
}

// Render is Generate on README contents.
func Render(spec connector.Specification, readme string, out io.Writer) error {
	readmeTmpl, err := Preprocess(readme)
	if err != nil {
		return fmt.Errorf("could not preprocess readme: %w", err)
	}

	t := template.New("readme").Funcs(funcMap).Funcs(sprig.TxtFuncMap())
	t, err = t.ParseFS(templates, "templates/*.tmpl")
	if err != nil {
		return fmt.Errorf("could not parse templates: %w", err)
	}
	if t, err = t.Parse(readmeTmpl); err != nil {
		return fmt.Errorf("could not parse readme template: %w", err)
	}

	return t.Execute(out, map[string]any{
		"specification": spec,
		"components":    spec.Components,
	})
}

var funcMap = template.FuncMap{
	"formatCommentYAML": formatCommentYAML,
	"args":              args,
}

func args(kvs ...any) (map[string]any, error) {
	if len(kvs)%2 != 0 {
		return nil, errors.New("args requires even number of arguments")
	}
	m := make(map[string]any)
	for i := 0; i < len(kvs); i += 2 {
		s, ok := kvs[i].(string)
		if !ok {
			return nil, errors.New("even args must be strings")
		}
		m[s] = kvs[i+1]
	}
	return m, nil
}

// formatCommentYAML formats text as a YAML comment prefixed with indent
// spaces and "# ". Lines are wrapped at 80 characters.
func formatCommentYAML(text string, indent int) string {
	const (
		prefix     = "# "
		lineLen    = 80
		tmpNewLine = "〠"
	)
	if text == "" {
		return prefix
	}

	// remove markdown new lines
	text = strings.ReplaceAll(text, "\n\n", tmpNewLine)
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, tmpNewLine, "\n")

	comment := formatMultiline(text, strings.Repeat(" ", indent)+prefix, lineLen)
	// remove first indent and last new line
	return comment[indent : len(comment)-1]
}

func formatMultiline(input string, prefix string, maxLineLen int) string {
	textLen := maxLineLen - len(prefix)

	var formattedLines []string
	for _, line := range strings.Split(input, "\n") {
		if len(line) <= textLen {
			formattedLines = append(formattedLines, line)
			continue
		}

		// don't break words
		var formattedLine string
		for _, word := range strings.Fields(line) {
			if formattedLine != "" && len(formattedLine)+len(word) > textLen {
				formattedLines = append(formattedLines, formattedLine[1:])
				formattedLine = ""
			}
			formattedLine += " " + word
		}
		if formattedLine != "" {
			formattedLines = append(formattedLines, formattedLine[1:])
		}
	}

	var b strings.Builder
	for _, line := range formattedLines {
		b.WriteString(prefix + line + "\n")
	}
	return b.String()
}
