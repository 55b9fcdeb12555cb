// Command pickleit is a terminal client for the PickleIt API: browse
// preservation methods, save and master them, and follow your points,
// level, and achievements.
//
//	pickleit login --email you@example.com
//	pickleit methods list --category Pickling
//	pickleit save 3
//	pickleit progress
package main

import (
	"fmt"
	"os"
)

func main() {
	a := &app{}
	err := newRootCmd(a).Execute()
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
