package main

import "github.com/pfrederiksen/shuttle-schedule/internal/cli"

func main() {
	cli.Execute()
}
