// affectgate scores conversational turns for affective and safety signals
// and gates generation on them.
package main

import "github.com/ppiankov/affectgate/internal/cli"

// version is set by ldflags at build time.
var version = "dev"

func main() {
	cli.Version = version
	cli.Execute()
}
