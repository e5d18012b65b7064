package main

import "github.com/zimap/mboxarc/cmd"

func main() {
	cmd.Execute()
}
