package main

import "github.com/lepinkainen/longbox/cmd"

var execute = cmd.Execute

func main() {
	execute()
}
