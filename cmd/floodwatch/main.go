package main

import "github.com/keralanet/floodwatch/internal/cli"

func main() {
	cli.Execute()
}
