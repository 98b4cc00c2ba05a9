package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// LoadPath reads tasks from a single JSON file or from every *.json file in
// a directory, in file name order.
func LoadPath(path string) ([]Task, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading config path: %w", err)
	}

	if !info.IsDir() {
		if !isJSON(path) {
			return nil, fmt.Errorf("config file %q is not a .json file", path)
		}
		task, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		return []Task{task}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading config directory: %w", err)
	}

	var tasks []Task
	for _, e := range entries {
		if e.IsDir() || !isJSON(e.Name()) {
			continue
		}
		task, err := LoadFile(filepath.Join(path, e.Name()))
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	if len(tasks) == 0 {
		return nil, fmt.Errorf("no .json config files found in %q", path)
	}
	return tasks, nil
}

// LoadFile parses one JSON task file.
func LoadFile(path string) (Task, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return Task{}, fmt.Errorf("parsing config file %q: %w", path, err)
	}
	return FromViper(v, path), nil
}

func isJSON(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".json")
}
