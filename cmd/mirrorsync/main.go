// Command mirrorsync mirrors remote file collections into local storage.
package main

import "github.com/custodia-labs/mirrorsync/internal/adapters/driving/cli"

func main() {
	cli.Execute()
}
