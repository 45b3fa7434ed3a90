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
	"errors"
	"fmt"
	"strings"
)

const (
	readmegenTagPrefix = "readmegen:"
	readmegenOpenTag   = "<!-- " + readmegenTagPrefix
	readmegenCloseTag  = "<!-- /" + readmegenTagPrefix

	readmegenOpenTagLength  = len(readmegenOpenTag)
	readmegenCloseTagLength = len(readmegenCloseTag)

	commentClose       = "-->"
	commentCloseLength = len(commentClose)

	parametersTablePrefix = "parameters.table."
	parametersYAMLPrefix  = "parameters.yaml."
)

var (
	preprocessTags = map[string]string{
		"name":        `{{ title .specification.Name }}`,
		"summary":     `{{ .specification.Summary }}`,
		"description": `{{ .specification.Description }}`,
		"version":     `{{ .specification.Version }}`,
		"author":      `{{ .specification.Author }}`,
		"components":  `{{ template "components.list" .components }}`,
	}
	errReadmegenCommentNotFound = errors.New("readmegen open tag not found")
)

// tagTemplate returns the template replacing the content of tag. Parameter
// tags name a component, e.g. "parameters.table.destination.postgres".
func tagTemplate(tag string) (string, bool) {
	if tmpl, ok := preprocessTags[tag]; ok {
		return tmpl, true
	}
	for prefix, name := range map[string]string{
		parametersTablePrefix: "parameters.table",
		parametersYAMLPrefix:  "parameters.yaml",
	} {
		if component, ok := strings.CutPrefix(tag, prefix); ok && component != "" {
			return fmt.Sprintf(`{{ template %q args "component" %q "parameters" (index .components %q) }}`, name, component, component), true
		}
	}
	return "", false
}

// Preprocess takes the contents of a readme file and replaces readmegen tags
// with the corresponding template. A readmegen tag is a HTML comment
// <!-- readmegen:tag --> with a matching end tag <!-- /readmegen:tag -->.
// Everything between the tags is replaced. Unknown or unclosed tags are an
// error.
func Preprocess(data string) (string, error) {
	var out strings.Builder
	for {
		comment, err := nextReadmegenComment(data)
		if errors.Is(err, errReadmegenCommentNotFound) {
			// no more readmegen comments, flush the rest of the data
			_, _ = out.WriteString(data)
			break
		}
		if err != nil {
			return "", err
		}

		tmpl, ok := tagTemplate(comment.tag)
		if !ok {
			return "", errors.New("unknown readmegen tag: " + comment.tag)
		}

		_, _ = fmt.Fprintf(&out, "%s%s%s", data[:comment.openEndIndex], tmpl, data[comment.closeStartIndex:comment.closeEndIndex])
		data = data[comment.closeEndIndex:]
	}
	return out.String(), nil
}

func nextReadmegenComment(data string) (readmegenComment, error) {
	openStartIndex := strings.Index(data, readmegenOpenTag)
	if openStartIndex == -1 {
		return readmegenComment{}, errReadmegenCommentNotFound
	}
	openEndIndex := strings.Index(data[openStartIndex:], commentClose)
	if openEndIndex == -1 {
		return readmegenComment{}, errors.New("readmegen open tag not closed")
	}
	openEndIndex += openStartIndex + commentCloseLength

	tag := strings.TrimRight(data[openStartIndex+readmegenOpenTagLength:openEndIndex-commentCloseLength], " ")

	closeStartIndex := strings.Index(data[openEndIndex:], readmegenCloseTag+tag)
	if closeStartIndex == -1 {
		return readmegenComment{}, errors.New("readmegen close tag not found")
	}
	closeStartIndex += openEndIndex

	closeEndIndex := strings.Index(data[closeStartIndex:], commentClose)
	if closeEndIndex == -1 {
		return readmegenComment{}, errors.New("readmegen close tag not closed")
	}
	closeEndIndex += closeStartIndex + commentCloseLength

	// the close tag must contain only the tag
	if strings.TrimRight(data[closeStartIndex+readmegenCloseTagLength:closeEndIndex-commentCloseLength], " ") != tag {
		return readmegenComment{}, errors.New("readmegen close tag not found")
	}

	return readmegenComment{
		openEndIndex:    openEndIndex,
		closeStartIndex: closeStartIndex,
		closeEndIndex:   closeEndIndex,
		tag:             tag,
	}, nil
}

type readmegenComment struct {
	openEndIndex    int
	closeStartIndex int
	closeEndIndex   int
	tag             string
}
