package main

import "github.com/darmiel/satellite/cmd"

func main() {
	cmd.Execute()
}
