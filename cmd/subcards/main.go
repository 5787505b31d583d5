package main

import "github.com/subcards/subcards/internal/cli"

func main() {
	cli.Main()
}
