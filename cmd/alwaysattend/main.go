// Command alwaysattend drives the attendance portal: it proves a session,
// resolves this week's codes, and submits them into the matching slots.
package main

import "os"

func main() {
	os.Exit(Execute())
}
