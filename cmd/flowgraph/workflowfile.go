package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/pkg/schema"
)

// loadWorkflowFile reads one or more workflow definitions from a YAML or
// JSON file. YAML files may hold several documents separated by "---".
func loadWorkflowFile(path string) ([]*schema.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		var wf schema.Workflow
		if err := json.Unmarshal(data, &wf); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return []*schema.Workflow{&wf}, nil
	}

	var out []*schema.Workflow
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var doc map[string]any
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if doc == nil {
			continue
		}
		wf, err := workflowFromDoc(doc)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		out = append(out, wf)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no workflow definitions", path)
	}
	return out, nil
}

// workflowFromDoc round-trips a decoded YAML document through JSON so node
// configs land in their raw form.
func workflowFromDoc(doc map[string]any) (*schema.Workflow, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var wf schema.Workflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// loadWorkflowPaths loads every file argument. Directories contribute their
// .yaml, .yml and .json files in name order.
func loadWorkflowPaths(paths []string) ([]*schema.Workflow, error) {
	var out []*schema.Workflow
	for _, p := range paths {
		files, err := expandPath(p)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			wfs, err := loadWorkflowFile(f)
			if err != nil {
				return nil, err
			}
			out = append(out, wfs...)
		}
	}
	return out, nil
}

func expandPath(p string) ([]string, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{p}, nil
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			files = append(files, filepath.Join(p, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// seedStore saves workflows without validation so that mutually referencing
// definitions can be loaded in any order; callers validate afterwards.
func seedStore(ctx context.Context, st store.WorkflowStore, workflows []*schema.Workflow) error {
	for _, wf := range workflows {
		if wf.ID == "" {
			return fmt.Errorf("workflow %q has no id", wf.Name)
		}
		if err := st.SaveWorkflow(ctx, wf); err != nil {
			return fmt.Errorf("save workflow %s: %w", wf.ID, err)
		}
	}
	return nil
}

// parseInput accepts inline JSON or @path to a JSON/YAML file.
func parseInput(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	data := []byte(s)
	if strings.HasPrefix(s, "@") {
		var err error
		data, err = os.ReadFile(s[1:])
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
	}
	var input map[string]any
	if err := yaml.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}
	return input, nil
}
