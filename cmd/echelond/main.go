package main

import "github.com/echelon-net/echelond/internal/cli"

func main() {
	cli.Execute()
}
