package main

import "fandom-vis/cmd/fandomvis/commands"

func main() {
	commands.Execute()
}
