package main

import "github.com/example/resy-autobook/cmd"

func main() {
	cmd.Execute()
}
