// Command spacestatus keeps a hackspace's SpaceAPI document in sync with its
// door and status lever sensors.
package main

import (
	"os"

	"github.com/andrew-d/spacestatus/cli"
)

func main() {
	os.Exit(cli.New().Run(os.Args[1:]))
}
