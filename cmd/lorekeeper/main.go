package main

import "github.com/gravitycar/lorekeeper/internal/adapters/driving/cli"

func main() {
	cli.Execute()
}
