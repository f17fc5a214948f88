package main

import "skill-radar/cli"

func main() {
	cli.Execute()
}
