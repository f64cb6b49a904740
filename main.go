package main

import "github.com/w3kit/slotfinder/cmd"

func main() {
	cmd.Execute()
}
