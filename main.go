package main

import "github.com/hicap-oss/claude-code-router/cmd"

func main() {
	cmd.Execute()
}
