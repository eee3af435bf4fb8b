// filename: internal/alerter/source/file.go
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// fileDocument формат файла правил
//
//	rules:
//	  frost_warning:
//	    type: recurrent
//	    ...
//	sensors:
//	  outdoor/temperature:
//	    description: Outside
//	    unit: "°C"
type fileDocument struct {
	Rules   map[string]yaml.Node `yaml:"rules"`
	Sensors map[string]yaml.Node `yaml:"sensors"`
}

// FileLoader читает *.yaml и *.yml файлы каталога // v1.0
type FileLoader struct {
	dir string
}

// NewFileLoader создает загрузчик каталога правил // v1.0
func NewFileLoader(dir string) *FileLoader {
	return &FileLoader{dir: dir}
}

// Name возвращает имя источника // v1.0
func (l *FileLoader) Name() string {
	return "alerter/files"
}

// Load читает все файлы каталога. Один и тот же идентификатор в двух файлах считается ошибкой // v1.0
func (l *FileLoader) Load(_ context.Context) (map[string]string, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(l.dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to list rule files: %w", err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	docs := make(map[string]string)
	origin := make(map[string]string)

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		var doc fileDocument
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}

		sections := []struct {
			prefix string
			nodes  map[string]yaml.Node
		}{
			{PrefixRules, doc.Rules},
			{PrefixSensors, doc.Sensors},
		}

		for _, section := range sections {
			for id, node := range section.nodes {
				key := section.prefix + id
				if first, dup := origin[key]; dup {
					return nil, fmt.Errorf("%s is defined in both %s and %s", key, first, path)
				}

				node := node
				out, err := yaml.Marshal(&node)
				if err != nil {
					return nil, fmt.Errorf("failed to encode %s from %s: %w", key, path, err)
				}
				docs[key] = string(out)
				origin[key] = path
			}
		}
	}

	return docs, nil
}
