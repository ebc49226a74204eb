package main

import "github.com/characterforge/compendium/cmd/compendium/cmd"

func main() {
	cmd.Execute()
}
