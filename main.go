package main

import "pump-radar/internal/cli"

func main() {
	cli.Execute()
}
