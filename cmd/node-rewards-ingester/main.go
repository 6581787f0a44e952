package main

import "node-rewards-ingester/internal/cli"

func main() {
	cli.Execute()
}
