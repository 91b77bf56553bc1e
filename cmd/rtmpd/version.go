package main

import "fmt"

// version is set via -ldflags "-X main.version=..." at release build
// time; left at "dev" for local builds.
var version = "dev"

func printVersion() {
	fmt.Printf("rtmpd %s\n", version)
}
