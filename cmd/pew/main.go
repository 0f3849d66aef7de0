package main

import "github.com/mvp-joe/pew/internal/cli"

func main() {
	cli.Execute()
}
