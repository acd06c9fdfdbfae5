package main

import "github.com/PottierLoic/Remotely/internal/cli"

func main() {
	cli.Execute()
}
