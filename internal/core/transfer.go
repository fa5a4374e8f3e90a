// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/toeirei/cachesweep/internal/model"
	"gopkg.in/yaml.v3"
)

// ExportVersion is written into every export.
const ExportVersion = 1

// WriteExport writes data as zstd-compressed JSON.
func WriteExport(ctx context.Context, data *model.Export, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if data.Version == 0 {
		data.Version = ExportVersion
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode export: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush export: %w", err)
	}
	return nil
}

// ReadExport reads an export written by WriteExport.
func ReadExport(r io.Reader) (*model.Export, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()
	var data model.Export
	if err := json.NewDecoder(zr).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	if data.Version > ExportVersion {
		return nil, fmt.Errorf("export version %d is newer than supported version %d", data.Version, ExportVersion)
	}
	return &data, nil
}

// hostsFile is the document accepted by ParseHostsYAML.
type hostsFile struct {
	Hosts []HostInput `yaml:"hosts"`
}

// ParseHostsYAML reads host definitions either as a `hosts:` mapping or as
// a bare sequence.
func ParseHostsYAML(r io.Reader) ([]HostInput, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read hosts file: %w", err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("parse hosts file: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, errors.New("hosts file is empty")
	}
	doc := node.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		var list []HostInput
		if err := doc.Decode(&list); err != nil {
			return nil, fmt.Errorf("decode hosts: %w", err)
		}
		return list, nil
	case yaml.MappingNode:
		var f hostsFile
		if err := doc.Decode(&f); err != nil {
			return nil, fmt.Errorf("decode hosts: %w", err)
		}
		if f.Hosts == nil {
			return nil, errors.New("hosts file has no hosts key")
		}
		return f.Hosts, nil
	}
	return nil, errors.New("hosts file must be a list or contain a hosts key")
}

// ImportHosts creates every input in order and returns the new ids. It stops
// at the first failure; hosts created before it are kept.
func (s *Service) ImportHosts(ctx context.Context, inputs []HostInput) ([]string, error) {
	ids := make([]string, 0, len(inputs))
	for i, in := range inputs {
		id, err := s.CreateHost(ctx, in)
		if err != nil {
			return ids, fmt.Errorf("host %d (%s): %w", i+1, in.Name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// InputsFromExport returns the hosts of an export as inputs.
func InputsFromExport(data *model.Export) []HostInput {
	out := make([]HostInput, 0, len(data.Hosts))
	for _, h := range data.Hosts {
		out = append(out, InputFromHost(h))
	}
	return out
}
