// Command assetctl runs the editing pipeline against local files and mints
// operator tokens for development.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
