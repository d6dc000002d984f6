// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"
)

// Export formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Export writes every turn for profile (all profiles when empty) to w as
// YAML or JSON.
func Export(ctx context.Context, store Store, profile, format string, w io.Writer) error {
	turns, err := store.All(ctx, profile)
	if err != nil {
		return fmt.Errorf("querying for export: %w", err)
	}
	if turns == nil {
		turns = []Turn{}
	}

	var data []byte
	switch format {
	case FormatYAML, "yml", "":
		data, err = yaml.Marshal(turns)
	case FormatJSON:
		data, err = json.MarshalIndent(turns, "", "  ")
		data = append(data, '\n')
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", format, err)
	}

	_, err = w.Write(data)
	return err
}
