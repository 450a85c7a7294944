package main

import "github.com/dgarza/acceso/cmd/acceso/cmd"

func main() {
	cmd.Execute()
}
