package main

import "github.com/seubert/gammalog/cmd"

func main() {
	cmd.Execute()
}
