package main

import "matchmate-chat/internal/cli"

func main() {
	cli.Execute()
}
