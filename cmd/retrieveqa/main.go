// Command retrieveqa is a debug entrypoint for the policy retrieval core:
// it wires an Engine from a config file/environment and issues single
// queries against it, printing the resulting RetrievalOutput as JSON. It is
// not a server — there is no HTTP/MCP transport in this repo's scope.
package main

import (
	"fmt"
	"os"

	"github.com/nithin8919/policyretrieval/cmd/retrieveqa/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
