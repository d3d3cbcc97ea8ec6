package main

import "github.com/goosewin/qforia/cmd"

func main() {
	cmd.Execute()
}
