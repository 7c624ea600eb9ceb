package main

import "tablexport/internal/cli"

func main() {
	cli.Execute()
}
