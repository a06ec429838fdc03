package main

import "invoice-tracking/cmd/cli/cmd"

func main() {
	cmd.Execute()
}
