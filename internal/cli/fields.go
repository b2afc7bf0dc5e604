package cli

import (
	"fmt"
	"strings"

	"github.com/msomdec/expense-store/internal/domain"
	"github.com/spf13/cobra"
)

// recordInput collects record fields from --json and repeated --field flags.
// --field values win over keys from --json.
type recordInput struct {
	json   string
	fields []string
}

func (in *recordInput) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&in.json, "json", "", `Fields as a JSON object, e.g. '{"amount": 10}'`)
	cmd.Flags().StringArrayVar(&in.fields, "field", nil, "Field as key=value; value is parsed as JSON when possible")
}

func (in *recordInput) fields() (map[string]any, error) {
	out := map[string]any{}
	if strings.TrimSpace(in.json) != "" {
		parsed, err := domain.DecodeFields([]byte(in.json))
		if err != nil {
			return nil, fmt.Errorf("%w: --json: %v", domain.ErrInvalidInput, err)
		}
		out = parsed
	}

	for _, kv := range in.fields {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: --field %q must be key=value", domain.ErrInvalidInput, kv)
		}
		out[key] = parseFieldValue(value)
	}
	return out, nil
}

// parseFieldValue reads numbers, booleans, null and quoted strings as JSON
// and keeps anything else as a plain string.
func parseFieldValue(raw string) any {
	wrapped, err := domain.DecodeFields([]byte(`{"v":` + raw + `}`))
	if err != nil || len(wrapped) != 1 {
		return raw
	}
	return wrapped["v"]
}
