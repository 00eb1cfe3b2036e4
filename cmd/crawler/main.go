// Package main provides the wiki-weaver command line.
//
// Usage:
//
//	crawler run --config weaver.yaml
//	crawler version
package main

import "os"

func main() {
	os.Exit(Execute())
}
