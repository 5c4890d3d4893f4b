package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stepchallenge/stepd/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var (
		outputFile string
		format     string
		baseURL    string
	)

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate the OpenAPI specification",
		Long:  "Generate the OpenAPI 3.1 specification for the stepd HTTP API.",
		Example: `  stepd openapi                        # JSON to stdout
  stepd openapi --format yaml          # YAML to stdout
  stepd openapi -o openapi.json        # write to file`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpenAPI(outputFile, format, baseURL)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or yaml")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Server base URL (default: from config)")

	return cmd
}

func runOpenAPI(outputFile, format, baseURL string) error {
	if baseURL == "" {
		baseURL = loadConfig().Server.BaseURL
	}

	doc := openapi.GenerateSpec(baseURL)
	jsonBytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}

	var out []byte
	switch format {
	case "json":
		out = append(jsonBytes, '\n')
	case "yaml":
		var tree map[string]interface{}
		if err := json.Unmarshal(jsonBytes, &tree); err != nil {
			return fmt.Errorf("convert spec: %w", err)
		}
		out, err = yaml.Marshal(tree)
		if err != nil {
			return fmt.Errorf("marshal spec: %w", err)
		}
	default:
		return fmt.Errorf("unsupported format %q; use 'json' or 'yaml'", format)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, out, 0644); err != nil {
			return fmt.Errorf("write %s: %w", outputFile, err)
		}
		fmt.Printf("Wrote %s\n", outputFile)
		return nil
	}
	fmt.Print(string(out))
	return nil
}
