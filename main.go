package main

import "github.com/quayside/stevedore/internal/cmd"

func main() {
	cmd.Execute()
}
