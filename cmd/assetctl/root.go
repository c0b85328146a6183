package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "assetctl",
		Short: "Offline tools for the media library",
		Long: `assetctl renders derivations and watermark previews from local files,
using the same pipeline as the API.

Examples:
  assetctl derive --in cat.jpg --spec edit.yaml --out cat-edited.jpg
  assetctl watermark preview --settings mark.yaml --out preview.png
  assetctl token --secret $MEDIALIB_SECURITY_JWTACCESSSECRET --scope library:write`,
		SilenceUsage: true,
	}

	root.AddCommand(newDeriveCmd())
	root.AddCommand(newWatermarkCmd())
	root.AddCommand(newTokenCmd())
	return root
}

// readYAML decodes path into v. Unknown keys are rejected so typos surface.
func readYAML(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
