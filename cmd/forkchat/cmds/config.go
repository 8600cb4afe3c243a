package cmds

import (
	"io"
	"os"
	"sort"

	"github.com/go-go-golems/forkchat/pkg/steps/ai/settings"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var secretKeys = map[string]bool{
	"api-key": true,
}

func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printConfig(viper.GetViper(), os.Stdout)
		},
	}
}

// printConfig writes every known setting and the resulting inference settings.
// Secrets are masked.
func printConfig(v *viper.Viper, w io.Writer) error {
	stepSettings, err := settings.NewStepSettingsFromViper(v)
	if err != nil {
		return err
	}

	keys := v.AllKeys()
	sort.Strings(keys)
	values := map[string]interface{}{}
	for _, k := range keys {
		value := v.Get(k)
		if secretKeys[k] {
			if s, ok := value.(string); ok && s != "" {
				value = "****"
			}
		}
		values[k] = value
	}

	out := map[string]interface{}{
		"config-file": v.ConfigFileUsed(),
		"settings":    values,
		"inference":   stepSettings.GetMetadata(),
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}
