package main

import (
	"cs2-market-watcher/internal/cli"
)

func main() {
	cli.Execute()
}
