package main

import "boxbluebook/internal/cli"

func main() {
	cli.Execute()
}
