package main

import "github.com/slashbot/slashbot/cmd"

func main() {
	cmd.Execute()
}
