package main

import "github.com/fakeyudi/inkwell/cmd"

func main() {
	cmd.Execute()
}
