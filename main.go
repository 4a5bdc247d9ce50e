package main

import "transfer-alerts/internal/cli"

func main() {
	cli.Execute()
}
