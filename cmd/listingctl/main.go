// Command listingctl is the operator CLI for the listings service: schema
// migration, the optional expiry sweep, admin role grants, dev tokens and a
// read-only view of the site settings.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
