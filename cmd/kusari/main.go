package main

import "github.com/hyperjump/kusari/internal/cli"

var version = "dev"

func main() {
	cli.Execute(version)
}
