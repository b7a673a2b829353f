// Command vdo is the local control surface for a VDO instance: it parses
// device-table lines and drives the admin message set (spec §6). It stands
// in for the host's dmsetup message interface, which is out of scope for
// this module.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
