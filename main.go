package main

import "github.com/itsmostafa/normtree/cmd"

func main() {
	cmd.Execute()
}
